package requestid

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRequestID(t *testing.T) {
	tests := []struct {
		name     string
		customID string
		pattern  string
	}{
		{"simple", "my-request", `^[a-f0-9]{5}-my-request$`},
		{"special characters", "inv@2024#01!", `^[a-f0-9]{5}-inv202401$`},
		{"spaces", "fatura mensal 7", `^[a-f0-9]{5}-fatura-mensal-7$`},
		{"hyphen runs", "--a---b--", `^[a-f0-9]{5}-a-b$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := GenerateRequestID(tt.customID)
			assert.Regexp(t, regexp.MustCompile(tt.pattern), id)
		})
	}
}

func TestGenerateRequestID_FallsBackToUUID(t *testing.T) {
	for _, in := range []string{"", "   ", "@#$%", "---"} {
		id := GenerateRequestID(in)
		_, err := uuid.Parse(id)
		require.NoError(t, err, "input %q should produce a UUID, got %q", in, id)
	}
}

func TestGenerateRequestID_Length(t *testing.T) {
	id := GenerateRequestID(strings.Repeat("x", 100))
	assert.Len(t, id, MaxRequestIDLength)

	// truncation must not leave a trailing hyphen
	id = GenerateRequestID(strings.Repeat("a", MaxCustomIDLength-1) + "-bbbb")
	assert.False(t, strings.HasSuffix(id, "-"))
	assert.LessOrEqual(t, len(id), MaxRequestIDLength)
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := GenerateRequestID("same")
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc-123", Sanitize("  abc 123  "))
	assert.Equal(t, "", Sanitize("!!!"))
}
