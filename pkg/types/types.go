package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Section keys inside RenderRequest.Data
const (
	DataKeySections  = "secoes"
	DataKeyTimestamp = "dataAtual"

	SectionKeyComponent = "componente"
	SectionKeyContent   = "conteudo"
	SectionKeyConfig    = "config"
	SectionKeyImage     = "imagemBase64"
)

// Section component kinds (matched case-insensitively)
const (
	ComponentQRCode  = "qrcode"
	ComponentChart   = "chart"
	ComponentGrafico = "grafico"
)

const (
	ContentTypePDF   = "application/pdf"
	DefaultFileBase  = "documento"
	PDFFileExtension = ".pdf"
)

// RenderRequest is the inbound render call. Immutable once fingerprinted.
type RenderRequest struct {
	TemplateName string         `json:"templateName"`
	Data         map[string]any `json:"data"`
	FileName     string         `json:"fileName,omitempty"`
	OutputName   string         `json:"outputName,omitempty"` // alias for FileName
}

// RequestedFileName returns the caller supplied output name, preferring fileName over outputName
func (r *RenderRequest) RequestedFileName() string {
	if r.FileName != "" {
		return r.FileName
	}
	return r.OutputName
}

// ErrorResponse is the JSON body returned for every failed render
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	RequestID  string `json:"requestId"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status            string    `json:"status"`
	ServiceID         string    `json:"service_id"`
	Uptime            float64   `json:"uptime"` // seconds
	Timestamp         time.Time `json:"timestamp"`
	Templates         int       `json:"templates"`
	Partials          int       `json:"partials"`
	TemplatesChecksum string    `json:"templates_checksum"`
	MemoryUsedPercent float64   `json:"memory_used_percent,omitempty"`
	MemoryAvailable   uint64    `json:"memory_available_bytes,omitempty"`
}

// Duration wraps time.Duration with extended YAML parsing support for days and weeks
type Duration time.Duration

var extendedDurationRe = regexp.MustCompile(`^(-?)(\d+(?:\.\d+)?)(d|w)$`)

// UnmarshalYAML implements yaml.Unmarshaler for extended duration formats
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON accepts both numbers (nanoseconds) and strings ("15s", "30d", "2w").
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ns int64
	if err := json.Unmarshal(data, &ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or number, got %s", string(data))
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ToDuration converts types.Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDuration parses standard Go durations plus the d (days) and w (weeks) suffixes
func ParseDuration(s string) (time.Duration, error) {
	if dur, err := time.ParseDuration(s); err == nil {
		return dur, nil
	}

	matches := extendedDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration %q: expected Go duration or format like '30d' or '2w'", s)
	}

	value, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if matches[1] == "-" {
		value = -value
	}

	unit := 24 * time.Hour
	if matches[3] == "w" {
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(value * float64(unit)), nil
}
