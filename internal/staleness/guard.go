// Package staleness decides whether an inbound message is too old to act on.
//
// After a restart or an outage Telegram delivers the backlog of messages that
// queued up while the bot was away. The Guard drops messages that lag behind
// the processing clock and, once a run of stale messages reaches a limit, stops
// emitting diagnostics for them until a fresh message arrives.
package staleness

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is the age above which a message counts as stale.
	DefaultThreshold = 30 * time.Second
	// DefaultMaxStreak is the number of stale messages reported before the guard blocks.
	DefaultMaxStreak = 3

	// ReasonLimitExceeded is the reason attached to Blocked decisions.
	ReasonLimitExceeded = "stale-limit-exceeded"
)

// Kind is the outcome of a guard evaluation.
type Kind int

const (
	Fresh Kind = iota
	Stale
	Blocked
)

func (k Kind) String() string {
	switch k {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Decision is returned by Guard.Evaluate.
type Decision struct {
	Kind Kind
	// Age is how far the message lags behind the evaluation instant.
	// Zero when the message carried no timestamp.
	Age time.Duration
	// Count is the stale streak after the evaluation. Zero for Fresh.
	Count int
	// Reason is set for Blocked decisions.
	Reason string
}

// Allowed reports whether the message should be processed.
func (d Decision) Allowed() bool {
	return d.Kind == Fresh
}

// AgeMinutes returns the message age in whole minutes, rounded down.
func (d Decision) AgeMinutes() int64 {
	return int64(d.Age / time.Minute)
}

// Option configures a Guard.
type Option func(*Guard)

// WithThreshold overrides DefaultThreshold. Non-positive values are ignored.
func WithThreshold(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.threshold = d
		}
	}
}

// WithMaxStreak overrides DefaultMaxStreak. Negative values are ignored.
func WithMaxStreak(n int) Option {
	return func(g *Guard) {
		if n >= 0 {
			g.maxStreak = n
		}
	}
}

// WithObserver registers an observer for counter transitions.
func WithObserver(o Observer) Option {
	return func(g *Guard) {
		if o != nil {
			g.counter.observe(o)
		}
	}
}

// Guard holds the stale streak for one bot process.
type Guard struct {
	mu        sync.Mutex
	counter   Counter
	threshold time.Duration
	maxStreak int
}

// New creates a Guard with a zero streak.
func New(opts ...Option) *Guard {
	g := &Guard{
		threshold: DefaultThreshold,
		maxStreak: DefaultMaxStreak,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate classifies a message sent at sentAt and processed at now.
// A zero sentAt means the transport supplied no timestamp and the message is
// treated as fresh.
func (g *Guard) Evaluate(sentAt, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sentAt.IsZero() {
		g.counter.Reset()
		return Decision{Kind: Fresh}
	}

	age := now.Sub(sentAt)
	if age <= g.threshold {
		g.counter.Reset()
		return Decision{Kind: Fresh, Age: age}
	}

	if n := g.counter.Value(); n >= g.maxStreak {
		return Decision{Kind: Blocked, Age: age, Count: n, Reason: ReasonLimitExceeded}
	}

	return Decision{Kind: Stale, Age: age, Count: g.counter.Increment()}
}

// Count returns the current stale streak.
func (g *Guard) Count() int {
	return g.counter.Value()
}

// Threshold returns the configured staleness threshold.
func (g *Guard) Threshold() time.Duration {
	return g.threshold
}

// MaxStreak returns the configured streak limit.
func (g *Guard) MaxStreak() int {
	return g.maxStreak
}

// Decrement lowers the streak by one. The guard itself never calls it; it lets
// operators walk the streak back without waiting for a fresh message.
func (g *Guard) Decrement() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter.Decrement()
}

// Reset clears the streak.
func (g *Guard) Reset() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter.Reset()
}
