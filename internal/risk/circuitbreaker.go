package risk

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/logging"
)

// BreakerConfig configures the auto-execution circuit breaker, adapted
// from the provider-level circuit breaker manager's settings shape.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after 5 consecutive failed executions and
// stays open for 5 minutes before probing recovery.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             5 * time.Minute,
		ConsecutiveFailures: 5,
	}
}

// Breaker wraps gobreaker.CircuitBreaker with a manual forced-open flag, so
// an operator can suspend auto-execution independently of gobreaker's own
// failure counting.
type Breaker struct {
	cb         *gobreaker.CircuitBreaker
	log        zerolog.Logger

	mu         sync.RWMutex
	forcedOpen bool
	forcedWhy  string
}

// NewBreaker constructs a Breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{log: logging.Component("circuit_breaker")}
	settings := gobreaker.Settings{
		Name:        "auto_execute",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("auto-execute circuit breaker state change")
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs fn through the breaker, counting fn's error toward the trip
// condition.
func (b *Breaker) Execute(fn func() error) error {
	if b.IsOpen() {
		return errors.New("circuit breaker is open (forced or tripped)")
	}
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	return err
}

// IsOpen reports whether the breaker is open, either because gobreaker
// tripped it or because it was forced open manually.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	forced := b.forcedOpen
	b.mu.RUnlock()
	return forced || b.cb.State() == gobreaker.StateOpen
}

// ForceOpen manually suspends auto-execution, e.g. following a stress-test
// result that exceeds the drawdown tolerance. reason is surfaced through
// Status for operator visibility.
func (b *Breaker) ForceOpen(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forcedOpen = true
	b.forcedWhy = reason
}

// ForceClose clears a manual ForceOpen. gobreaker's own tripped state, if
// any, still governs IsOpen independently.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forcedOpen = false
	b.forcedWhy = ""
}

// Status reports the breaker's current state for the operator API.
type Status struct {
	State          string `json:"state"`
	ForcedOpen     bool   `json:"forced_open"`
	ForcedReason   string `json:"forced_reason,omitempty"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

func (b *Breaker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := b.cb.Counts()
	return Status{
		State:               b.cb.State().String(),
		ForcedOpen:          b.forcedOpen,
		ForcedReason:        b.forcedWhy,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}
