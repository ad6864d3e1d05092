// Package retry provides bounded-attempt exponential backoff retry,
// executed on a small dedicated worker pool, for the event fabric's
// network broadcast phase.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/boredhf/conexus/internal/apperrors"
)

// ErrExhausted wraps the last error observed after every retry attempt
// is spent.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Config governs the exponential backoff schedule: after failed attempt
// n (1-indexed) the next attempt waits min(BaseDelay * Multiplier^(n-1),
// MaxDelay).
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Workers is the size of the dedicated scheduler pool. At least 2,
	// per spec §4.5.
	Workers int
	// OnRetry, if set, is called once for every attempt beyond the
	// first, before the retried call runs. Used to feed retry counts
	// into the caller's own metrics.
	OnRetry func(name string, attempt int)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * c.BaseDelay
	}
	if c.Workers < 2 {
		c.Workers = 2
	}
	return c
}

// Manager executes operations under a bounded exponential backoff
// schedule on its own worker pool, so a caller blocked in
// ExecuteWithRetry never ties up the goroutine that submitted the
// work. Shutdown drains the pool with a bounded grace period.
type Manager struct {
	cfg Config
	log *slog.Logger

	jobs   chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup

	shuttingDown atomic.Bool
}

// NewManager constructs a Manager and starts its worker pool. log may
// be nil, in which case slog.Default() is used.
func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		log:    log,
		jobs:   make(chan func(), 128),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case job := <-m.jobs:
			job()
		}
	}
}

// Shutdown stops accepting new work and waits up to a 5-second grace
// period for in-flight retries to drain. Retries still pending after
// the grace period are abandoned; their ExecuteWithRetry callers
// observe apperrors.ErrCancelled via ctx if the caller's ctx is also
// cancelled, or simply never return if it is not — callers should
// derive ctx from a context that Shutdown's caller also cancels.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	close(m.stopCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	grace := 5 * time.Second
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("%w: retry manager shutdown grace period exceeded", apperrors.ErrCancelled)
	}
}

// permanent wraps an error to signal backoff.Retry should stop
// retrying immediately, per backoff/v5's permanent-error convention.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as non-retryable. ExecuteWithRetry returns
// immediately when the wrapped operation returns such an error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

type outcome[T any] struct {
	value T
	err   error
}

// ExecuteWithRetry submits op to the manager's worker pool, retrying
// on error up to MaxAttempts times with exponential backoff, and
// blocks until it settles, ctx is cancelled, or the manager is
// shutting down. name is used only for logging.
func ExecuteWithRetry[T any](ctx context.Context, m *Manager, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if m.shuttingDown.Load() {
		return zero, fmt.Errorf("%w: retry manager is shutting down", apperrors.ErrCancelled)
	}

	resultCh := make(chan outcome[T], 1)
	job := func() {
		v, err := runWithBackoff(ctx, m, name, op)
		resultCh <- outcome[T]{value: v, err: err}
	}

	select {
	case m.jobs <- job:
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", apperrors.ErrCancelled, ctx.Err())
	case <-m.stopCh:
		return zero, fmt.Errorf("%w: retry manager shut down", apperrors.ErrCancelled)
	}

	select {
	case out := <-resultCh:
		return out.value, out.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", apperrors.ErrCancelled, ctx.Err())
	}
}

func runWithBackoff[T any](ctx context.Context, m *Manager, name string, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.BaseDelay
	b.Multiplier = m.cfg.Multiplier
	b.MaxInterval = m.cfg.MaxDelay
	b.RandomizationFactor = 0

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 && m.cfg.OnRetry != nil {
			m.cfg.OnRetry(name, attempt)
		}
		v, opErr := op(ctx)
		if opErr == nil {
			if attempt > 1 {
				m.log.Info("retry succeeded", "operation", name, "attempt", attempt)
			}
			return v, nil
		}

		var perm *permanent
		if errors.As(opErr, &perm) {
			return v, backoff.Permanent(perm.err)
		}

		m.log.Warn("retry attempt failed", "operation", name, "attempt", attempt, "error", opErr)
		return v, opErr
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(m.cfg.MaxAttempts)))

	if err != nil {
		var zero T
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return zero, perm.Unwrap()
		}
		return zero, fmt.Errorf("%w: operation %q after %d attempts: %v", ErrExhausted, name, attempt, err)
	}
	return result, nil
}
