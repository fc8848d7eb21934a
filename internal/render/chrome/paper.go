package chrome

import (
	"fmt"

	"github.com/edgecomet/pdfgen/internal/common/configtypes"
)

type PaperSize = configtypes.PaperSize

// LookupPaper resolves a case-insensitive paper name
func LookupPaper(name string) (PaperSize, error) {
	size, ok := configtypes.LookupPaper(name)
	if !ok {
		return PaperSize{}, fmt.Errorf("%w: %q", ErrUnknownPaper, name)
	}
	return size, nil
}
