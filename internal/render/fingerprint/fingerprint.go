// Package fingerprint derives a stable identity for a render request so that
// identical requests map to the same lock key regardless of map ordering.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ShortLength is the number of characters kept by Short for log fields
const ShortLength = 8

var ErrInvalidPayload = errors.New("payload is not serializable")

// canonical is marshalled with keys in lexical order ("data" < "templateName").
// encoding/json sorts map keys at every depth and emits no whitespace.
type canonical struct {
	Data         any    `json:"data"`
	TemplateName string `json:"templateName"`
}

// Compute returns the lowercase hex SHA-256 of the canonical JSON form of the request.
// Values that cannot be encoded (channels, funcs, NaN, cycles) fail with ErrInvalidPayload.
func Compute(templateName string, data any) (string, error) {
	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(canonical{Data: normalized, TemplateName: templateName})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// normalize round-trips data through JSON so that structs, typed maps and integer
// types collapse to the same generic form a decoded request body would have.
func normalize(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// Short truncates a fingerprint for logging
func Short(fp string) string {
	if len(fp) <= ShortLength {
		return fp
	}
	return fp[:ShortLength]
}
