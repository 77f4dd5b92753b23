package staleness

import "sync"

// Op identifies a counter transition.
type Op string

const (
	OpIncrement Op = "increment"
	OpDecrement Op = "decrement"
	OpReset     Op = "reset"
)

// Transition describes a single change of the stale streak counter.
type Transition struct {
	Op   Op
	From int
	To   int
}

// Observer receives counter transitions. Observers run synchronously while the
// counter lock is held and must not call back into the counter or the guard.
type Observer func(Transition)

// Counter tracks the number of consecutive stale messages.
// The zero value is ready to use.
type Counter struct {
	mu        sync.Mutex
	n         int
	observers []Observer
}

// Value returns the current streak.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Increment adds one to the streak and returns the new value.
func (c *Counter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set(OpIncrement, c.n+1)
}

// Decrement removes one from the streak and returns the new value.
// The streak never goes below zero.
func (c *Counter) Decrement() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set(OpDecrement, max(c.n-1, 0))
}

// Reset sets the streak back to zero.
func (c *Counter) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set(OpReset, 0)
}

func (c *Counter) observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Counter) set(op Op, to int) int {
	t := Transition{Op: op, From: c.n, To: to}
	c.n = to
	for _, o := range c.observers {
		o(t)
	}
	return to
}
