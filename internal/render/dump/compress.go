package dump

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/edgecomet/pdfgen/internal/common/configtypes"
)

// File extensions appended to compressed dumps
const (
	ExtSnappy = ".snappy"
	ExtLZ4    = ".lz4"
)

// ErrDecompression is returned when a dump cannot be decoded.
var ErrDecompression = errors.New("decompression failed")

// Compress encodes content with the given algorithm and returns the bytes plus the
// extension to append. "none", "" and unknown algorithms return content unchanged.
func Compress(content []byte, algorithm string) ([]byte, string, error) {
	switch algorithm {
	case configtypes.CompressionSnappy:
		return snappy.Encode(nil, content), ExtSnappy, nil

	case configtypes.CompressionLZ4:
		// stream format embeds the size
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), ExtLZ4, nil

	default:
		return content, "", nil
	}
}

// Decompress decodes content based on the file path extension.
func Decompress(content []byte, filePath string) ([]byte, error) {
	switch DetectAlgorithm(filePath) {
	case configtypes.CompressionSnappy:
		out, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return out, nil

	case configtypes.CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return out, nil

	default:
		return content, nil
	}
}

// DetectAlgorithm returns the compression algorithm implied by a file path.
func DetectAlgorithm(filePath string) string {
	switch {
	case strings.HasSuffix(filePath, ExtSnappy):
		return configtypes.CompressionSnappy
	case strings.HasSuffix(filePath, ExtLZ4):
		return configtypes.CompressionLZ4
	default:
		return configtypes.CompressionNone
	}
}
