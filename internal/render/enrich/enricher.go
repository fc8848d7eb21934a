// Package enrich attaches generated images (QR codes, charts) to document sections
// before the data reaches the template compositor.
package enrich

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/pkg/types"
)

const dataURLPrefix = "data:image/png;base64,"

var ErrEnrichmentFailed = errors.New("enrichment failed")

// QREncoder turns text into a PNG QR code
type QREncoder interface {
	Encode(ctx context.Context, content string) ([]byte, error)
}

// ChartRenderer turns a Chart.js-style configuration into a PNG
type ChartRenderer interface {
	Render(ctx context.Context, config map[string]any) ([]byte, error)
}

// Warning describes a section that looked enrichable but was passed through untouched
type Warning struct {
	Section int    `json:"section"` // 1-based
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("section #%d (%s): %s", w.Section, w.Kind, w.Message)
}

type Result struct {
	Data     map[string]any
	Warnings []Warning
}

type Enricher struct {
	qr     QREncoder
	charts ChartRenderer
	logger *zap.Logger
}

func New(qr QREncoder, charts ChartRenderer, logger *zap.Logger) *Enricher {
	return &Enricher{qr: qr, charts: charts, logger: logger}
}

type sectionKind int

const (
	kindPlain sectionKind = iota
	kindQRCode
	kindChart
)

func (k sectionKind) String() string {
	switch k {
	case kindQRCode:
		return types.ComponentQRCode
	case kindChart:
		return types.ComponentChart
	default:
		return "plain"
	}
}

func classify(section map[string]any) sectionKind {
	component, _ := section[types.SectionKeyComponent].(string)
	switch strings.ToLower(strings.TrimSpace(component)) {
	case types.ComponentQRCode:
		return kindQRCode
	case types.ComponentChart, types.ComponentGrafico:
		return kindChart
	default:
		return kindPlain
	}
}

// Enrich returns a copy of data in which every QR and chart section carries an
// imagemBase64 data URL. data itself is never modified. Any backend failure aborts
// the whole enrichment with ErrEnrichmentFailed.
func (e *Enricher) Enrich(ctx context.Context, data map[string]any) (*Result, error) {
	sections, ok := data[types.DataKeySections].([]any)
	if !ok {
		return &Result{Data: data}, nil
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	enriched := make([]any, len(sections))
	out[types.DataKeySections] = enriched

	var warnings []Warning

	for i, raw := range sections {
		index := i + 1
		enriched[i] = raw

		section, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		kind := classify(section)
		if kind == kindPlain {
			continue
		}

		png, warning, err := e.render(ctx, kind, section)
		if err != nil {
			e.logger.Error("Section enrichment failed",
				zap.Int("section", index),
				zap.String("kind", kind.String()),
				zap.Error(err))
			return nil, fmt.Errorf("%w: section #%d (%s): %v", ErrEnrichmentFailed, index, kind, err)
		}
		if warning != "" {
			w := Warning{Section: index, Kind: kind.String(), Message: warning}
			e.logger.Warn("Section skipped during enrichment",
				zap.Int("section", index),
				zap.String("kind", w.Kind),
				zap.String("reason", warning))
			warnings = append(warnings, w)
			continue
		}

		copied := make(map[string]any, len(section)+1)
		for k, v := range section {
			copied[k] = v
		}
		copied[types.SectionKeyImage] = dataURLPrefix + base64.StdEncoding.EncodeToString(png)
		enriched[i] = copied

		e.logger.Debug("Section enriched",
			zap.Int("section", index),
			zap.String("kind", kind.String()),
			zap.Int("png_bytes", len(png)))
	}

	return &Result{Data: out, Warnings: warnings}, nil
}

// render returns either an image, a pass-through warning, or a backend error
func (e *Enricher) render(ctx context.Context, kind sectionKind, section map[string]any) ([]byte, string, error) {
	switch kind {
	case kindQRCode:
		content, _ := section[types.SectionKeyContent].(string)
		if content == "" {
			return nil, "qrcode section has no 'conteudo'", nil
		}
		png, err := e.qr.Encode(ctx, content)
		return png, "", err

	case kindChart:
		config, ok := section[types.SectionKeyConfig].(map[string]any)
		if !ok {
			return nil, "chart section has no 'config' object", nil
		}
		png, err := e.charts.Render(ctx, config)
		return png, "", err
	}

	return nil, "", nil
}
