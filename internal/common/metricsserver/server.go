package metricsserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/configtypes"
)

// Server exposes the metrics handler on its own listener, away from the render port
type Server struct {
	srv    *fasthttp.Server
	ln     net.Listener
	logger *zap.Logger
}

// Start binds cfg.Listen and serves handler at cfg.Path.
// Returns nil, nil when metrics are disabled. Bind errors are returned synchronously.
func Start(cfg configtypes.MetricsConfig, handler fasthttp.RequestHandler, logger *zap.Logger) (*Server, error) {
	if !cfg.Enabled {
		logger.Info("Metrics collection disabled")
		return nil, nil
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to bind metrics listener %s: %w", cfg.Listen, err)
	}

	s := &Server{
		ln:     ln,
		logger: logger,
		srv: &fasthttp.Server{
			Handler:            route(cfg.Path, handler),
			Name:               "pdfgen-metrics",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			MaxRequestBodySize: 1 * 1024,
			TCPKeepalive:       true,
			TCPKeepalivePeriod: 30 * time.Second,
			MaxConnsPerIP:      100,
			MaxRequestsPerConn: 1000,
			Concurrency:        100,
		},
	}

	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", ln.Addr().String()),
			zap.String("path", cfg.Path))

		if err := s.srv.Serve(ln); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	return s, nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.ShutdownWithContext(ctx)
}

func route(path string, handler fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == path {
			handler(ctx)
			return
		}
		ctx.Error("Not Found", fasthttp.StatusNotFound)
	}
}
