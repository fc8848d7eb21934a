// Package pipeline drives a single render request from fingerprint to delivered PDF,
// holding the fingerprint lock for the duration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/render/enrich"
	"github.com/edgecomet/pdfgen/internal/render/fingerprint"
	"github.com/edgecomet/pdfgen/internal/render/lock"
	"github.com/edgecomet/pdfgen/internal/render/metrics"
	"github.com/edgecomet/pdfgen/internal/render/retry"
	"github.com/edgecomet/pdfgen/pkg/types"
)

// Stage is the last state a run reached
type Stage string

const (
	StageReceived            Stage = "received"
	StageFingerprintComputed Stage = "fingerprint_computed"
	StageLockAcquired        Stage = "lock_acquired"
	StageEnriched            Stage = "enriched"
	StageComposed            Stage = "composed"
	StageRendered            Stage = "rendered"
	StageResponded           Stage = "responded"
	StageFailed              Stage = "failed"
)

const (
	DefaultLockTTL    = 30 * time.Second
	DefaultRetryAfter = 5 * time.Second
)

type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

type DataEnricher interface {
	Enrich(ctx context.Context, data map[string]any) (*enrich.Result, error)
}

type Composer interface {
	Compose(name string, data map[string]any) (string, error)
}

type Renderer interface {
	Render(ctx context.Context, markup string) (*retry.Result, error)
}

// Dumper persists markup of failed renders. *dump.Writer satisfies it.
type Dumper interface {
	Write(requestID string, markup []byte) (string, error)
}

// Artifact is the finished document handed to DeliverFunc
type Artifact struct {
	Fingerprint string
	FileName    string
	ContentType string
	Body        []byte
	Attempts    int
	Warnings    []enrich.Warning
}

// DeliverFunc writes the artifact to the caller. The lock is released after it returns.
type DeliverFunc func(*Artifact) error

// Outcome describes a finished run, successful or not
type Outcome struct {
	Stage       Stage
	LastStage   Stage // last non-failed stage reached
	Fingerprint string
	Artifact    *Artifact
	Duration    time.Duration
}

type Deps struct {
	Composer   Composer
	Enricher   DataEnricher
	Renderer   Renderer
	Locker     Locker
	Dumper     Dumper // optional
	Metrics    *metrics.MetricsCollector
	Logger     *zap.Logger
	LockTTL    time.Duration
	RetryAfter time.Duration
}

type Pipeline struct {
	deps Deps
}

func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Composer == nil:
		return nil, errors.New("pipeline: composer is required")
	case deps.Enricher == nil:
		return nil, errors.New("pipeline: enricher is required")
	case deps.Renderer == nil:
		return nil, errors.New("pipeline: renderer is required")
	case deps.Locker == nil:
		return nil, errors.New("pipeline: locker is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = DefaultLockTTL
	}
	if deps.RetryAfter <= 0 {
		deps.RetryAfter = DefaultRetryAfter
	}
	return &Pipeline{deps: deps}, nil
}

// run carries the per-request state through the stages
type run struct {
	p         *Pipeline
	req       *types.RenderRequest
	requestID string
	logger    *zap.Logger
	outcome   *Outcome
	lockKey   string
	locked    bool
}

// Run executes one render. The returned Outcome is never nil; the error, when
// present, is always a *Error. Caller cancellation does not interrupt the run.
func (p *Pipeline) Run(ctx context.Context, req *types.RenderRequest, requestID string, deliver DeliverFunc) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	p.deps.Metrics.PipelineStarted()
	defer p.deps.Metrics.PipelineFinished()

	r := &run{
		p:         p,
		req:       req,
		requestID: requestID,
		logger:    p.deps.Logger.With(zap.String("request_id", requestID)),
		outcome:   &Outcome{Stage: StageReceived, LastStage: StageReceived},
	}

	err := r.execute(ctx, deliver)
	r.release(ctx)

	r.outcome.Duration = time.Since(start)
	if err != nil {
		r.outcome.Stage = StageFailed
		p.deps.Metrics.RecordPipeline(string(err.Kind), r.outcome.Duration)
		r.logFailure(err)
		return r.outcome, err
	}

	p.deps.Metrics.RecordPipeline(metrics.OutcomeSuccess, r.outcome.Duration)
	r.logger.Info("PDF generated",
		zap.String("file_name", r.outcome.Artifact.FileName),
		zap.String("size", humanize.Bytes(uint64(len(r.outcome.Artifact.Body)))),
		zap.Int("attempts", r.outcome.Artifact.Attempts),
		zap.Int("warnings", len(r.outcome.Artifact.Warnings)),
		zap.Duration("duration", r.outcome.Duration))
	return r.outcome, nil
}

func (r *run) advance(stage Stage) {
	r.outcome.Stage = stage
	r.outcome.LastStage = stage
}

func (r *run) execute(ctx context.Context, deliver DeliverFunc) *Error {
	deps := r.p.deps

	if r.req == nil || strings.TrimSpace(r.req.TemplateName) == "" {
		return newError(KindInvalidRequest, "templateName is required", nil)
	}
	if r.req.Data == nil {
		return newError(KindInvalidRequest, "data is required", nil)
	}
	r.logger = r.logger.With(zap.String("template", r.req.TemplateName))

	fp, err := fingerprint.Compute(r.req.TemplateName, r.req.Data)
	if err != nil {
		return wrap("invalid payload", err)
	}
	r.outcome.Fingerprint = fp
	r.logger = r.logger.With(zap.String("fingerprint", fingerprint.Short(fp)))
	r.advance(StageFingerprintComputed)

	r.lockKey = lock.Key(fp)
	acquired, err := deps.Locker.Acquire(ctx, r.lockKey, r.requestID, deps.LockTTL)
	if err != nil {
		deps.Metrics.RecordLockError("acquire")
		return wrap("lock store unavailable", err)
	}
	if !acquired {
		deps.Metrics.RecordLockConflict()
		return &Error{
			Kind:       KindConflict,
			Message:    "an identical request is already being processed",
			RetryAfter: deps.RetryAfter,
		}
	}
	r.locked = true
	r.advance(StageLockAcquired)

	enriched, err := deps.Enricher.Enrich(ctx, r.req.Data)
	if err != nil {
		return wrap("enrichment failed", err)
	}
	if n := len(enriched.Warnings); n > 0 {
		deps.Metrics.RecordEnrichmentWarnings(n)
		for _, w := range enriched.Warnings {
			r.logger.Warn("Section passed through without image",
				zap.Int("section", w.Section),
				zap.String("kind", w.Kind),
				zap.String("reason", w.Message))
		}
	}
	r.advance(StageEnriched)

	markup, err := deps.Composer.Compose(r.req.TemplateName, enriched.Data)
	if err != nil {
		return wrap("composition failed", err)
	}
	r.advance(StageComposed)

	rendered, err := deps.Renderer.Render(ctx, markup)
	if err != nil {
		r.dump(markup)
		return wrap("rendering failed", err)
	}
	deps.Metrics.RecordDocumentSize(len(rendered.Body))
	r.advance(StageRendered)

	artifact := &Artifact{
		Fingerprint: fp,
		FileName:    FileName(r.req.RequestedFileName(), r.req.TemplateName),
		ContentType: types.ContentTypePDF,
		Body:        rendered.Body,
		Attempts:    rendered.Attempts,
		Warnings:    enriched.Warnings,
	}
	r.outcome.Artifact = artifact

	if deliver != nil {
		if err := deliver(artifact); err != nil {
			return newError(KindInternal, fmt.Sprintf("delivery failed: %v", err), err)
		}
	}
	r.advance(StageResponded)
	return nil
}

// release frees the lock if this run took it. Failures are logged only.
func (r *run) release(ctx context.Context) {
	if !r.locked {
		return
	}
	if err := r.p.deps.Locker.Release(ctx, r.lockKey, r.requestID); err != nil {
		r.p.deps.Metrics.RecordLockError("release")
		r.logger.Error("Failed to release lock, it will expire on its own",
			zap.String("key", r.lockKey),
			zap.Duration("ttl", r.p.deps.LockTTL),
			zap.Error(err))
		return
	}
	r.locked = false
}

func (r *run) dump(markup string) {
	if r.p.deps.Dumper == nil {
		return
	}
	path, err := r.p.deps.Dumper.Write(r.requestID, []byte(markup))
	if path == "" && err == nil {
		return
	}
	r.p.deps.Metrics.RecordDump(err == nil)
	if err != nil {
		r.logger.Warn("Failed to dump markup of failed render", zap.Error(err))
	}
}

func (r *run) logFailure(err *Error) {
	fields := []zap.Field{
		zap.String("kind", string(err.Kind)),
		zap.String("stage", string(r.outcome.LastStage)),
		zap.Duration("duration", r.outcome.Duration),
		zap.Error(err),
	}
	switch err.Kind {
	case KindConflict:
		r.logger.Warn("Duplicate request rejected", fields...)
	case KindInvalidRequest, KindTemplateNotFound:
		r.logger.Info("Request rejected", fields...)
	default:
		r.logger.Error("PDF generation failed", fields...)
	}
}
