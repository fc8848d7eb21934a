package requestid

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request ID on inbound requests and every response
const Header = "X-Request-ID"

const (
	// MaxRequestIDLength caps IDs at UUID length so they stay safe as file names and log fields
	MaxRequestIDLength = 36
	PrefixLength       = 5
	MaxCustomIDLength  = MaxRequestIDLength - PrefixLength - 1
)

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	hyphenRuns   = regexp.MustCompile(`-{2,}`)
)

// GenerateRequestID returns a fresh UUID when customID is empty, otherwise
// {5 random hex}-{sanitized customID}. Sanitizing keeps [a-zA-Z0-9-], turns spaces into
// hyphens and collapses hyphen runs. The result never exceeds MaxRequestIDLength.
func GenerateRequestID(customID string) string {
	sanitized := Sanitize(customID)
	if sanitized == "" {
		return uuid.NewString()
	}

	if len(sanitized) > MaxCustomIDLength {
		sanitized = strings.TrimSuffix(sanitized[:MaxCustomIDLength], "-")
	}

	return randomPrefix() + "-" + sanitized
}

// Sanitize reduces a caller supplied ID to the characters allowed in request IDs
func Sanitize(customID string) string {
	s := strings.ReplaceAll(strings.TrimSpace(customID), " ", "-")
	s = invalidChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func randomPrefix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:PrefixLength]
}
