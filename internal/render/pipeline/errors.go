package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/pdfgen/internal/render/compose"
	"github.com/edgecomet/pdfgen/internal/render/enrich"
	"github.com/edgecomet/pdfgen/internal/render/fingerprint"
	"github.com/edgecomet/pdfgen/internal/render/lock"
	"github.com/edgecomet/pdfgen/internal/render/retry"
)

// Kind tags a pipeline failure and decides its HTTP status
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindConflict             Kind = "conflict"
	KindTemplateNotFound     Kind = "template_not_found"
	KindEnrichmentFailed     Kind = "enrichment_failed"
	KindRenderingFailed      Kind = "rendering_failed"
	KindLockStoreUnavailable Kind = "lock_store_unavailable"
	KindInternal             Kind = "internal"
)

// Error is the single failure type returned by Run.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // only set for KindConflict
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind onto the response status code
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return fasthttp.StatusBadRequest
	case KindTemplateNotFound:
		return fasthttp.StatusNotFound
	case KindConflict:
		return fasthttp.StatusTooManyRequests
	default:
		return fasthttp.StatusInternalServerError
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

// Classify maps a component error onto its Kind by sentinel
func Classify(err error) Kind {
	var pe *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, fingerprint.ErrInvalidPayload):
		return KindInvalidRequest
	case errors.Is(err, lock.ErrStoreUnavailable):
		return KindLockStoreUnavailable
	case errors.Is(err, compose.ErrTemplateNotFound):
		return KindTemplateNotFound
	case errors.Is(err, enrich.ErrEnrichmentFailed):
		return KindEnrichmentFailed
	case errors.Is(err, retry.ErrRenderingFailed), errors.Is(err, context.DeadlineExceeded):
		return KindRenderingFailed
	default:
		return KindInternal
	}
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// wrap classifies err and builds an Error whose message is prefixed by context
func wrap(prefix string, err error) *Error {
	return newError(Classify(err), fmt.Sprintf("%s: %v", prefix, err), err)
}
