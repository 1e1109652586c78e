package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBreakerOpen is returned without invoking the call while the breaker is
// shedding load. It is never transient: the retry layer must fail fast
// instead of hammering an upstream that is already down.
var ErrBreakerOpen = eris.New("resilience: circuit open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive trip-worthy failures that
	// opens the breaker. Default 5.
	Threshold int

	// Cooldown is how long the breaker sheds load before letting a probe
	// call through. Default 30s.
	Cooldown time.Duration

	// Trips decides which errors count toward the threshold. Nil counts
	// every non-nil error.
	Trips func(error) bool
}

// Breaker sheds load from a failing upstream. Consecutive trip-worthy
// failures open it; once the cooldown lapses a probe call is let through
// and its outcome decides whether the breaker closes again.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	open     bool
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a Breaker, applying defaults for unset config fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Guard runs fn through the breaker, returning ErrBreakerOpen without
// calling fn while the breaker is open and inside its cooldown.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, ErrBreakerOpen
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	// Cooldown over: let a probe through. Its result re-opens or closes.
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trips := b.cfg.Trips
	if trips == nil {
		trips = func(e error) bool { return e != nil }
	}

	if err == nil || !trips(err) {
		b.open = false
		b.failures = 0
		return
	}

	b.failures++
	b.openedAt = b.now()
	if b.failures >= b.cfg.Threshold {
		b.open = true
	}
}
