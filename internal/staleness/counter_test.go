package staleness

import "testing"

func TestCounterOperations(t *testing.T) {
	t.Parallel()

	var c Counter
	steps := []struct {
		name string
		op   func() int
		want int
	}{
		{"increment from zero", c.Increment, 1},
		{"increment again", c.Increment, 2},
		{"decrement", c.Decrement, 1},
		{"decrement to zero", c.Decrement, 0},
		{"decrement floors at zero", c.Decrement, 0},
		{"increment after floor", c.Increment, 1},
		{"reset", c.Reset, 0},
		{"reset is idempotent", c.Reset, 0},
	}

	for _, s := range steps {
		if got := s.op(); got != s.want {
			t.Fatalf("%s: got %d, want %d", s.name, got, s.want)
		}
		if c.Value() != s.want {
			t.Fatalf("%s: Value() = %d, want %d", s.name, c.Value(), s.want)
		}
	}
}

func TestCounterObserversReceiveEveryTransition(t *testing.T) {
	t.Parallel()

	var c Counter
	var first, second []Op
	c.observe(func(tr Transition) { first = append(first, tr.Op) })
	c.observe(func(tr Transition) { second = append(second, tr.Op) })

	c.Increment()
	c.Reset()
	c.Decrement()

	want := []Op{OpIncrement, OpReset, OpDecrement}
	for _, got := range [][]Op{first, second} {
		if len(got) != len(want) {
			t.Fatalf("ops = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("ops = %v, want %v", got, want)
			}
		}
	}
}
