package exchange

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sawpanic/nexus/internal/xerrors"
)

// RetryConfig bounds the exponential backoff wrapper every outbound
// adapter operation goes through.
type RetryConfig struct {
	MaxRetries          int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	ConsecutiveErrorCap int // N consecutive errors before unhealthy
	MaxRecoveryAttempts int
}

// DefaultRetryConfig sets the base 1s / cap 30s / 5-consecutive-error
// backoff contract.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:          5,
		BaseDelay:           time.Second,
		MaxDelay:            30 * time.Second,
		ConsecutiveErrorCap: 5,
		MaxRecoveryAttempts: 3,
	}
}

// backoffDelay returns base*2^attempt capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max || d <= 0 {
		return max
	}
	return d
}

// HealthTracker accumulates success/error counts and derives the Health
// snapshot an Adapter exposes. It is safe for concurrent use: every
// outbound call path (HTTP round trip, order placement) records through
// it after the attempt completes.
type HealthTracker struct {
	mu                sync.Mutex
	totalRequests     int64
	totalSuccesses    int64
	consecutiveErrors int
	lastError         string
	lastUpdate        time.Time
	recoveryAttempts  int
	cfg               RetryConfig
}

func NewHealthTracker(cfg RetryConfig) *HealthTracker {
	return &HealthTracker{cfg: cfg, lastUpdate: time.Now()}
}

// RecordSuccess resets the consecutive-error count.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalRequests++
	h.totalSuccesses++
	h.consecutiveErrors = 0
	h.recoveryAttempts = 0
	h.lastUpdate = time.Now()
}

// RecordError increments the consecutive-error count; the adapter becomes
// unhealthy once it reaches ConsecutiveErrorCap.
func (h *HealthTracker) RecordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalRequests++
	h.consecutiveErrors++
	h.lastError = err.Error()
	h.lastUpdate = time.Now()
}

// IsHealthy reports whether consecutive errors are below the cap.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveErrors < h.cfg.ConsecutiveErrorCap
}

// Snapshot returns the current Health view.
func (h *HealthTracker) Snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	reliability := 1.0
	if h.totalRequests > 0 {
		reliability = float64(h.totalSuccesses) / float64(h.totalRequests)
	}
	return Health{
		IsHealthy:         h.consecutiveErrors < h.cfg.ConsecutiveErrorCap,
		ReliabilityScore:  reliability,
		LastUpdate:        h.lastUpdate,
		ConsecutiveErrors: h.consecutiveErrors,
		LastError:         h.lastError,
		RecoveryAttempts:  h.recoveryAttempts,
	}
}

// BeginRecoveryAttempt increments and returns the recovery attempt count;
// callers stop retrying recovery once it exceeds MaxRecoveryAttempts.
func (h *HealthTracker) BeginRecoveryAttempt() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recoveryAttempts++
	return h.recoveryAttempts
}

// WithRetry runs fn with exponential backoff up to cfg.MaxRetries times,
// retrying only xerrors.Kind values that are Retryable. A success resets
// the tracker's consecutive-error count; exhausting retries
// records one error and returns the last classified error.
func WithRetry(ctx context.Context, cfg RetryConfig, tracker *HealthTracker, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			tracker.RecordSuccess()
			return nil
		}
		lastErr = err

		kind := xerrors.KindUnknown
		if ce, ok := err.(*xerrors.ClassifiedError); ok {
			kind = ce.Kind
		}
		if !kind.Retryable() || attempt == cfg.MaxRetries {
			break
		}

		delay := backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)
		select {
		case <-ctx.Done():
			tracker.RecordError(ctx.Err())
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	tracker.RecordError(lastErr)
	return lastErr
}

// Semaphore bounds in-flight requests per venue to respect rate limits.
type Semaphore struct {
	tokens chan struct{}
}

func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 5
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Callers must release on every exit path,
// including cancellation.
func (s *Semaphore) Release() {
	select {
	case <-s.tokens:
	default:
	}
}
