package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/requestid"
	"github.com/edgecomet/pdfgen/internal/render/pipeline"
	"github.com/edgecomet/pdfgen/pkg/types"
)

const (
	HeaderRenderAttempts = "X-Render-Attempts"
	HeaderRenderWarnings = "X-Render-Warnings"
)

// writeJSONResponse writes a JSON response with proper error handling
func (s *Server) writeJSONResponse(ctx *fasthttp.RequestCtx, statusCode int, response interface{}, path string) {
	body, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Failed to marshal response","kind":"internal"}`)
		ctx.SetContentType("application/json")
		s.metrics.RecordHTTPRequest(path, fasthttp.StatusInternalServerError)
		s.logger.Error("Failed to marshal JSON response",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetBody(body)
	ctx.SetContentType("application/json")
	s.metrics.RecordHTTPRequest(path, statusCode)
}

// writeErrorResponse writes the failure body shared by every endpoint
func (s *Server) writeErrorResponse(ctx *fasthttp.RequestCtx, statusCode int, kind pipeline.Kind, message, reqID, path string, retryAfter int) {
	if retryAfter > 0 {
		ctx.Response.Header.Set(fasthttp.HeaderRetryAfter, strconv.Itoa(retryAfter))
	}
	s.writeJSONResponse(ctx, statusCode, types.ErrorResponse{
		Error:      message,
		Kind:       string(kind),
		RequestID:  reqID,
		RetryAfter: retryAfter,
	}, path)
}

// HandleGeneratePDF processes POST /generate-pdf
func (s *Server) HandleGeneratePDF(ctx *fasthttp.RequestCtx) {
	reqID := requestid.GenerateRequestID(string(ctx.Request.Header.Peek(requestid.Header)))
	ctx.Response.Header.Set(requestid.Header, reqID)

	b := s.backend.Load()
	if b == nil {
		s.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, pipeline.KindInternal,
			"service is starting", reqID, PathGeneratePDF, 0)
		return
	}

	var req types.RenderRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeErrorResponse(ctx, fasthttp.StatusBadRequest, pipeline.KindInvalidRequest,
			"Invalid JSON body", reqID, PathGeneratePDF, 0)
		s.logger.Warn("Invalid request body",
			zap.String("request_id", reqID),
			zap.Error(err))
		return
	}

	// ctx must not be used after the handler returns, so the run stays synchronous
	_, err := b.runner.Run(ctx, &req, reqID, func(a *pipeline.Artifact) error {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType(a.ContentType)
		ctx.Response.Header.Set(fasthttp.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, a.FileName))
		ctx.Response.Header.Set(HeaderRenderAttempts, strconv.Itoa(a.Attempts))
		ctx.Response.Header.Set(HeaderRenderWarnings, strconv.Itoa(len(a.Warnings)))
		ctx.SetBody(a.Body)
		s.metrics.RecordHTTPRequest(PathGeneratePDF, fasthttp.StatusOK)
		return nil
	})
	if err != nil {
		var pe *pipeline.Error
		if !errors.As(err, &pe) {
			pe = &pipeline.Error{Kind: pipeline.KindInternal, Message: err.Error(), Err: err}
		}
		ctx.Response.Header.Del(fasthttp.HeaderContentDisposition)
		s.writeErrorResponse(ctx, pe.HTTPStatus(), pe.Kind, pe.Error(), reqID, PathGeneratePDF, pe.RetryAfterSeconds())
	}
}

// HandleHealth returns service status, uptime and template inventory
func (s *Server) HandleHealth(ctx *fasthttp.RequestCtx) {
	b := s.backend.Load()
	resp := types.HealthResponse{
		Status:    "ok",
		ServiceID: s.serviceID,
		Uptime:    time.Since(s.started).Seconds(),
		Timestamp: time.Now().UTC(),
	}

	if vm, err := s.memory(); err == nil {
		resp.MemoryUsedPercent = vm.UsedPercent
		resp.MemoryAvailable = vm.Available
	} else {
		s.logger.Debug("Failed to read system memory", zap.Error(err))
	}

	if b == nil {
		resp.Status = "starting"
		s.writeJSONResponse(ctx, fasthttp.StatusServiceUnavailable, resp, PathHealth)
		return
	}

	resp.Templates = len(b.catalog.Templates())
	resp.Partials = len(b.catalog.Fragments())
	resp.TemplatesChecksum = b.catalog.Checksum()
	s.writeJSONResponse(ctx, fasthttp.StatusOK, resp, PathHealth)
}
