package configtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListenAddress(t *testing.T) {
	tests := []struct {
		name     string
		listen   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "port with colon", listen: ":3000", wantPort: 3000},
		{name: "bare port", listen: "3000", wantPort: 3000},
		{name: "localhost", listen: "localhost:9090", wantHost: "localhost", wantPort: 9090},
		{name: "all interfaces", listen: "0.0.0.0:10070", wantHost: "0.0.0.0", wantPort: 10070},
		{name: "empty", listen: "", wantErr: true},
		{name: "garbage", listen: "invalid", wantErr: true},
		{name: "non numeric port", listen: "host:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseListenAddress(tt.listen)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestValidateListenAddress(t *testing.T) {
	assert.NoError(t, ValidateListenAddress(":3000"))
	assert.NoError(t, ValidateListenAddress("127.0.0.1:65535"))
	assert.Error(t, ValidateListenAddress(":0"))
	assert.Error(t, ValidateListenAddress(":70000"))
	assert.Error(t, ValidateListenAddress(""))
}

func TestNormalizeListen(t *testing.T) {
	got, err := NormalizeListen("8080")
	require.NoError(t, err)
	assert.Equal(t, ":8080", got)

	got, err = NormalizeListen("localhost:9090")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", got)
}

func TestWithPort(t *testing.T) {
	tests := []struct {
		name   string
		listen string
		port   string
		want   string
		err    bool
	}{
		{name: "keeps host", listen: "0.0.0.0:3000", port: "8080", want: "0.0.0.0:8080"},
		{name: "empty listen", listen: "", port: "4000", want: ":4000"},
		{name: "port only listen", listen: ":3000", port: " 5000 ", want: ":5000"},
		{name: "invalid port", listen: ":3000", port: "http", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithPort(tt.listen, tt.port)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
