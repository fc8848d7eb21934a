package enrich

import (
	"context"

	"github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels
const DefaultQRSize = 200

// QRCodeEncoder encodes with the highest error-correction level
type QRCodeEncoder struct {
	Size int
}

func NewQRCodeEncoder() *QRCodeEncoder {
	return &QRCodeEncoder{Size: DefaultQRSize}
}

func (q *QRCodeEncoder) Encode(ctx context.Context, content string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, err := qrcode.New(content, qrcode.Highest)
	if err != nil {
		return nil, err
	}

	size := q.Size
	if size <= 0 {
		size = DefaultQRSize
	}
	return code.PNG(size)
}
