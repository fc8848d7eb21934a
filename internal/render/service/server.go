package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/render/metrics"
	"github.com/edgecomet/pdfgen/internal/render/pipeline"
	"github.com/edgecomet/pdfgen/pkg/types"
)

const (
	PathGeneratePDF = "/generate-pdf"
	PathHealth      = "/health"

	// endpoint label for every unknown route
	otherEndpoint = "other"
)

// Runner executes one render request. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req *types.RenderRequest, requestID string, deliver pipeline.DeliverFunc) (*pipeline.Outcome, error)
}

// TemplateCatalog is the read-only view of the template registry used by /health
type TemplateCatalog interface {
	Templates() []string
	Fragments() []string
	Checksum() string
}

// backend is swapped in atomically once startup completes
type backend struct {
	runner  Runner
	catalog TemplateCatalog
}

// Server is the HTTP boundary. It answers 503 until MarkReady is called.
type Server struct {
	serviceID string
	metrics   *metrics.MetricsCollector
	logger    *zap.Logger
	started   time.Time
	backend   atomic.Pointer[backend]
	memory    func() (*mem.VirtualMemoryStat, error)
}

func NewServer(serviceID string, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) *Server {
	return &Server{
		serviceID: serviceID,
		metrics:   metricsCollector,
		logger:    logger,
		started:   time.Now(),
		memory:    mem.VirtualMemory,
	}
}

// MarkReady opens the readiness barrier once the lock store is reachable and templates are loaded
func (s *Server) MarkReady(runner Runner, catalog TemplateCatalog) {
	s.backend.Store(&backend{runner: runner, catalog: catalog})
	s.logger.Info("Service ready", zap.Int("templates", len(catalog.Templates())))
}

func (s *Server) Ready() bool {
	return s.backend.Load() != nil
}

// Handler returns the routing request handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())

		switch {
		case ctx.IsPost() && path == PathGeneratePDF:
			s.HandleGeneratePDF(ctx)
		case ctx.IsGet() && path == PathHealth:
			s.HandleHealth(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
			s.metrics.RecordHTTPRequest(otherEndpoint, fasthttp.StatusNotFound)
		}
	}
}
