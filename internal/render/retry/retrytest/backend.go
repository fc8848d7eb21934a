// Package retrytest provides a scripted in-memory rendering backend for tests.
package retrytest

import (
	"context"
	"errors"
	"sync"

	"github.com/edgecomet/pdfgen/internal/render/retry"
)

// Step scripts the behaviour of one session
type Step struct {
	LaunchErr error
	LoadErr   error
	ExportErr error
	CloseErr  error
	Body      []byte
	Browser   string // reported by BrowserVersion
	// Block makes Load wait for ctx cancellation
	Block bool
}

var ErrNoMoreSteps = errors.New("retrytest: no scripted step left")

// Backend hands out sessions following Steps in order. The last step repeats when
// Steps run out; with no steps every launch fails.
type Backend struct {
	mu       sync.Mutex
	Steps    []Step
	launches int
	closes   int
	markups  []string
}

func NewBackend(steps ...Step) *Backend {
	return &Backend{Steps: steps}
}

// Succeed returns a backend whose every session exports body
func Succeed(body string) *Backend {
	return NewBackend(Step{Body: []byte(body)})
}

// Fail returns a backend whose every session fails to load with err
func Fail(err error) *Backend {
	return NewBackend(Step{LoadErr: err})
}

func (b *Backend) Launch(ctx context.Context) (retry.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.Steps) == 0 {
		b.launches++
		return nil, ErrNoMoreSteps
	}
	idx := b.launches
	if idx >= len(b.Steps) {
		idx = len(b.Steps) - 1
	}
	b.launches++

	step := b.Steps[idx]
	if step.LaunchErr != nil {
		return nil, step.LaunchErr
	}
	return &session{backend: b, step: step}, nil
}

func (b *Backend) Launches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches
}

func (b *Backend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Markups returns every document handed to Load
func (b *Backend) Markups() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.markups...)
}

type session struct {
	backend *Backend
	step    Step
}

func (s *session) Load(ctx context.Context, markup string) error {
	s.backend.mu.Lock()
	s.backend.markups = append(s.backend.markups, markup)
	s.backend.mu.Unlock()

	if s.step.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.step.LoadErr
}

func (s *session) Export(context.Context) ([]byte, error) {
	if s.step.ExportErr != nil {
		return nil, s.step.ExportErr
	}
	return s.step.Body, nil
}

func (s *session) BrowserVersion() string {
	return s.step.Browser
}

func (s *session) Close() error {
	s.backend.mu.Lock()
	s.backend.closes++
	s.backend.mu.Unlock()
	return s.step.CloseErr
}
