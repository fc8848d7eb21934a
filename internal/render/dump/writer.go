package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	"github.com/edgecomet/pdfgen/internal/common/requestid"
)

const (
	dateDirLayout = "2006-01-02"
	markupExt     = ".html"
)

// Writer persists the compiled markup of renders that failed terminally.
// A nil *Writer is valid and writes nothing.
type Writer struct {
	dir         string
	compression string
	logger      *zap.Logger
	now         func() time.Time
}

// NewWriter returns nil when dumps are disabled
func NewWriter(cfg config.DumpConfig, logger *zap.Logger) *Writer {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		dir:         cfg.Dir,
		compression: cfg.Compression,
		logger:      logger,
		now:         time.Now,
	}
}

// Write stores markup at <dir>/<YYYY-MM-DD>/<request-id>.html[.snappy|.lz4] and returns the path.
func (w *Writer) Write(requestID string, markup []byte) (string, error) {
	if w == nil {
		return "", nil
	}

	name := requestid.Sanitize(requestID)
	if name == "" {
		name = fmt.Sprintf("dump-%d", w.now().UnixNano())
	}

	body, ext, err := Compress(markup, w.compression)
	if err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, w.now().UTC().Format(dateDirLayout), name+markupExt+ext)
	if err := writeAtomic(path, body); err != nil {
		return "", err
	}

	w.logger.Info("Failure markup dumped",
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(len(body)))),
		zap.String("compression", w.compression))
	return path, nil
}

// Read loads a dump written by Write, decompressing by extension.
func Read(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	return Decompress(content, path)
}

// writeAtomic writes to a temp file beside path then renames it into place
func writeAtomic(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
