package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	"github.com/edgecomet/pdfgen/internal/common/redis"
	"github.com/edgecomet/pdfgen/internal/render/compose"
	"github.com/edgecomet/pdfgen/internal/render/enrich"
	"github.com/edgecomet/pdfgen/internal/render/lock"
	"github.com/edgecomet/pdfgen/internal/render/pipeline"
	"github.com/edgecomet/pdfgen/internal/render/retry"
	"github.com/edgecomet/pdfgen/internal/render/retry/retrytest"
	"github.com/edgecomet/pdfgen/pkg/types"
)

const invoiceTemplate = `<html><body>{{> header}}
{{#each secoes}}<section>{{#if imagemBase64}}<img src="{{imagemBase64}}">{{/if}}{{conteudo}}</section>{{/each}}
</body></html>`

// gatedRenderer holds every render until the gate is opened
type gatedRenderer struct {
	inner   pipeline.Renderer
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedRenderer) Render(ctx context.Context, markup string) (*retry.Result, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.inner.Render(ctx, markup)
}

type env struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	registry *compose.Registry
	enricher *enrich.Enricher
	locker   *lock.Coordinator
}

func newEnv() *env {
	root := GinkgoT().TempDir()
	tplCfg := config.TemplatesConfig{
		Dir:         filepath.Join(root, "templates"),
		PartialsDir: filepath.Join(root, "partials"),
		Timezone:    "UTC",
	}
	Expect(os.MkdirAll(tplCfg.Dir, 0755)).To(Succeed())
	Expect(os.MkdirAll(tplCfg.PartialsDir, 0755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(tplCfg.Dir, "invoice.hbs"), []byte(invoiceTemplate), 0644)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(tplCfg.PartialsDir, "header.hbs"), []byte(`<h1>Fatura</h1>`), 0644)).To(Succeed())

	logger := zap.NewNop()
	registry, err := compose.Load(tplCfg, logger)
	Expect(err).NotTo(HaveOccurred())

	mr := miniredis.NewMiniRedis()
	Expect(mr.Start()).To(Succeed())
	DeferCleanup(mr.Close)

	client, err := redis.NewClient(&config.RedisConfig{Addr: mr.Addr()}, logger)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(client.Close)

	return &env{
		mr:       mr,
		client:   client,
		registry: registry,
		enricher: enrich.New(enrich.NewQRCodeEncoder(), enrich.NewGoChartRenderer(), logger),
		locker:   lock.NewCoordinator(client, time.Second, logger),
	}
}

func (e *env) pipeline(renderer pipeline.Renderer) *pipeline.Pipeline {
	p, err := pipeline.New(pipeline.Deps{
		Composer: e.registry,
		Enricher: e.enricher,
		Renderer: renderer,
		Locker:   e.locker,
		Logger:   zap.NewNop(),
		LockTTL:  30 * time.Second,
	})
	Expect(err).NotTo(HaveOccurred())
	return p
}

func retrier(backend retry.Backend, attempts int) *retry.Retrier {
	return retry.New(backend, retry.Config{
		MaxAttempts:    attempts,
		Backoff:        time.Millisecond,
		AttemptTimeout: time.Second,
	}, nil, zap.NewNop())
}

func kindOf(err error) pipeline.Kind {
	var pe *pipeline.Error
	Expect(errors.As(err, &pe)).To(BeTrue())
	return pe.Kind
}

func (e *env) lockKeys() []string {
	var keys []string
	for _, k := range e.mr.Keys() {
		if strings.HasPrefix(k, "lock:") {
			keys = append(keys, k)
		}
	}
	return keys
}

var _ = Describe("Pipeline", func() {
	var e *env

	BeforeEach(func() {
		e = newEnv()
	})

	Context("Scenario A: invoice with a QR section", func() {
		It("attaches an image, renders and names the file after the template", func() {
			backend := retrytest.Succeed("%PDF-1.7 invoice")
			p := e.pipeline(retrier(backend, 3))

			req := &types.RenderRequest{
				TemplateName: "invoice",
				Data: map[string]any{"secoes": []any{
					map[string]any{"componente": "qrcode", "conteudo": "INV-42"},
				}},
			}

			var artifact *pipeline.Artifact
			out, err := p.Run(context.Background(), req, "req-a", func(a *pipeline.Artifact) error {
				artifact = a
				return nil
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Stage).To(Equal(pipeline.StageResponded))
			Expect(artifact.FileName).To(Equal("invoice.pdf"))
			Expect(artifact.Body).NotTo(BeEmpty())
			Expect(artifact.Warnings).To(BeEmpty())

			Expect(backend.Markups()).To(HaveLen(1))
			Expect(backend.Markups()[0]).To(ContainSubstring(`<img src="data:image/png;base64,`))
			Expect(backend.Markups()[0]).To(ContainSubstring("<h1>Fatura</h1>"))

			section := req.Data["secoes"].([]any)[0].(map[string]any)
			Expect(section).NotTo(HaveKey("imagemBase64"), "caller data is not modified")
			Expect(e.lockKeys()).To(BeEmpty())
		})
	})

	Context("Scenario B: identical concurrent requests", func() {
		It("renders once and rejects the duplicate with a retry hint", func() {
			gated := &gatedRenderer{
				inner:   retrier(retrytest.Succeed("%PDF-1.7"), 3),
				entered: make(chan struct{}),
				gate:    make(chan struct{}),
			}
			p := e.pipeline(gated)

			req := func() *types.RenderRequest {
				return &types.RenderRequest{TemplateName: "invoice", Data: map[string]any{"secoes": []any{}}}
			}

			firstDone := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := p.Run(context.Background(), req(), "req-b1", nil)
				firstDone <- err
			}()

			Eventually(gated.entered).Should(BeClosed())
			Expect(e.lockKeys()).To(HaveLen(1))

			_, err := p.Run(context.Background(), req(), "req-b2", nil)
			Expect(kindOf(err)).To(Equal(pipeline.KindConflict))

			var pe *pipeline.Error
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.HTTPStatus()).To(Equal(429))
			Expect(pe.RetryAfterSeconds()).To(Equal(5))

			close(gated.gate)
			Eventually(firstDone).Should(Receive(BeNil()))
			Expect(e.lockKeys()).To(BeEmpty())
		})
	})

	Context("Scenario C: unknown template", func() {
		It("fails with template_not_found naming the template and releases the lock", func() {
			backend := retrytest.Succeed("%PDF")
			p := e.pipeline(retrier(backend, 3))

			_, err := p.Run(context.Background(), &types.RenderRequest{
				TemplateName: "does-not-exist",
				Data:         map[string]any{},
			}, "req-c", nil)

			Expect(kindOf(err)).To(Equal(pipeline.KindTemplateNotFound))
			Expect(err.Error()).To(ContainSubstring("does-not-exist"))
			Expect(backend.Launches()).To(BeZero())
			Expect(e.lockKeys()).To(BeEmpty())
		})
	})

	Context("Scenario D: chart section without config", func() {
		It("records a warning and still renders", func() {
			backend := retrytest.Succeed("%PDF-1.7")
			p := e.pipeline(retrier(backend, 3))

			req := &types.RenderRequest{
				TemplateName: "invoice",
				Data: map[string]any{"secoes": []any{
					map[string]any{"componente": "grafico"},
				}},
			}

			var artifact *pipeline.Artifact
			_, err := p.Run(context.Background(), req, "req-d", func(a *pipeline.Artifact) error {
				artifact = a
				return nil
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(artifact.Warnings).To(HaveLen(1))
			Expect(artifact.Warnings[0].Section).To(Equal(1))
			Expect(backend.Markups()[0]).NotTo(ContainSubstring("<img"))
		})
	})

	Context("Scenario E: backend always fails", func() {
		It("gives up after the attempt budget and releases the lock", func() {
			backend := retrytest.Fail(errors.New("chrome crashed"))
			p := e.pipeline(retrier(backend, 3))

			_, err := p.Run(context.Background(), &types.RenderRequest{
				TemplateName: "invoice",
				Data:         map[string]any{"secoes": []any{}},
			}, "req-e", nil)

			Expect(kindOf(err)).To(Equal(pipeline.KindRenderingFailed))
			Expect(errors.Is(err, retry.ErrRenderingFailed)).To(BeTrue())
			Expect(backend.Launches()).To(Equal(3))
			Expect(backend.Closes()).To(Equal(3))
			Expect(e.lockKeys()).To(BeEmpty())
		})
	})

	Context("lock store outage", func() {
		It("fails with lock_store_unavailable before rendering", func() {
			backend := retrytest.Succeed("%PDF")
			p := e.pipeline(retrier(backend, 3))
			e.mr.Close()

			_, err := p.Run(context.Background(), &types.RenderRequest{
				TemplateName: "invoice",
				Data:         map[string]any{},
			}, "req-f", nil)

			Expect(kindOf(err)).To(Equal(pipeline.KindLockStoreUnavailable))
			Expect(backend.Launches()).To(BeZero())
		})
	})

	Context("determinism", func() {
		It("computes the same fingerprint for equal payloads regardless of key order", func() {
			p := e.pipeline(retrier(retrytest.Succeed("%PDF"), 1))

			a, err := p.Run(context.Background(), &types.RenderRequest{
				TemplateName: "invoice",
				Data:         map[string]any{"x": 1, "y": "z"},
			}, "req-1", nil)
			Expect(err).NotTo(HaveOccurred())

			b, err := p.Run(context.Background(), &types.RenderRequest{
				TemplateName: "invoice",
				Data:         map[string]any{"y": "z", "x": 1.0},
			}, "req-2", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Fingerprint).To(Equal(b.Fingerprint))
		})
	})
})
