package pipeline

import (
	"regexp"
	"strings"

	"github.com/edgecomet/pdfgen/pkg/types"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileName derives the download name: the requested name, else the template
// name, else "documento"; unsafe runs become "_", lower-cased, ".pdf" ensured.
func FileName(requested, templateName string) string {
	base := strings.TrimSpace(requested)
	if base == "" {
		base = strings.TrimSpace(templateName)
	}
	if base == "" {
		base = types.DefaultFileBase
	}

	name := strings.ToLower(unsafeFileChars.ReplaceAllString(base, "_"))
	if !strings.HasSuffix(name, types.PDFFileExtension) {
		name += types.PDFFileExtension
	}
	return name
}
