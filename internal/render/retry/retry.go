// Package retry runs a rendering backend with a bounded attempt budget. Every attempt
// gets a fresh session which is always torn down.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	ErrRenderingFailed = errors.New("rendering failed")
	ErrEmptyDocument   = errors.New("renderer produced an empty document")
)

const (
	DefaultMaxAttempts    = 3
	DefaultBackoff        = 1 * time.Second
	DefaultAttemptTimeout = 60 * time.Second
)

// Backend starts isolated rendering sessions
type Backend interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is a single-use rendering context. Close must be safe after a failed Load or Export.
type Session interface {
	Load(ctx context.Context, markup string) error
	Export(ctx context.Context) ([]byte, error)
	Close() error
}

// versioned is implemented by sessions that know which browser build they drive
type versioned interface {
	BrowserVersion() string
}

// stage prefixes attempt errors with the step and, when known, the browser build
func stage(session Session, step string) string {
	if v, ok := session.(versioned); ok && v.BrowserVersion() != "" {
		return fmt.Sprintf("%s [%s]", step, v.BrowserVersion())
	}
	return step
}

// Observer receives the outcome of each attempt
type Observer interface {
	ObserveAttempt(success bool, duration time.Duration)
}

type Config struct {
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

type Result struct {
	Body     []byte
	Attempts int
}

type Retrier struct {
	backend  Backend
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

// New applies defaults to zero fields of cfg. observer may be nil.
func New(backend Backend, cfg Config, observer Observer, logger *zap.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Retrier{backend: backend, cfg: cfg, observer: observer, logger: logger}
}

// Render produces a PDF from markup, retrying up to MaxAttempts with a constant
// pause in between. Exhaustion returns ErrRenderingFailed wrapping the last cause.
func (r *Retrier) Render(ctx context.Context, markup string) (*Result, error) {
	attempts := 0

	operation := func() ([]byte, error) {
		attempts++
		return r.attempt(ctx, markup, attempts)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.Backoff)),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("Render attempt failed, retrying",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", r.cfg.MaxAttempts),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		r.logger.Error("Rendering failed after all attempts",
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrRenderingFailed, attempts, err)
	}

	return &Result{Body: body, Attempts: attempts}, nil
}

func (r *Retrier) attempt(ctx context.Context, markup string, n int) (body []byte, err error) {
	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveAttempt(err == nil, time.Since(start))
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	session, err := r.backend.Launch(attemptCtx)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	if session == nil {
		return nil, errors.New("launch: backend returned no session")
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("Render session teardown failed",
				zap.Int("attempt", n),
				zap.Error(cerr))
		}
	}()

	if err := session.Load(attemptCtx, markup); err != nil {
		return nil, fmt.Errorf("%s: %w", stage(session, "load"), err)
	}

	body, err = session.Export(attemptCtx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage(session, "export"), err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyDocument
	}

	r.logger.Debug("Render attempt succeeded",
		zap.Int("attempt", n),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	return body, nil
}
