package configtypes

import "strings"

// PaperSize is expressed in inches, the unit Page.printToPDF expects
type PaperSize struct {
	Width  float64
	Height float64
}

var paperSizes = map[string]PaperSize{
	"A3":     {Width: 11.69, Height: 16.54},
	"A4":     {Width: 8.27, Height: 11.69},
	"A5":     {Width: 5.83, Height: 8.27},
	"LETTER": {Width: 8.5, Height: 11},
	"LEGAL":  {Width: 8.5, Height: 14},
}

// LookupPaper resolves a case-insensitive paper name
func LookupPaper(name string) (PaperSize, bool) {
	size, ok := paperSizes[strings.ToUpper(strings.TrimSpace(name))]
	return size, ok
}
