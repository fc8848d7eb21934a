package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	"github.com/edgecomet/pdfgen/internal/common/configtypes"
	"github.com/edgecomet/pdfgen/internal/render/dump"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	tplDir := filepath.Join(root, "templates")
	partialsDir := filepath.Join(root, "partials")
	require.NoError(t, os.MkdirAll(tplDir, 0755))
	require.NoError(t, os.MkdirAll(partialsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "invoice.hbs"), []byte("<p>{{> header}}</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(partialsDir, "header.hbs"), []byte("<h1>x</h1>"), 0644))

	cfgPath := filepath.Join(root, "pdf-service.yaml")
	cfg := "templates:\n  dir: " + tplDir + "\n  partials_dir: " + partialsDir + "\n  timezone: UTC\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	return cfgPath
}

func TestTemplatesCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"templates", "-c", cfgPath})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "template  invoice")
	assert.Contains(t, out.String(), "fragment  header")
	assert.Contains(t, out.String(), "checksum: ")
}

func TestTemplatesCommand_BadConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"templates", "-c", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestReadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"templateName":"invoice","data":{"a":1},"outputName":"Fatura"}`), 0644))

	req, err := readRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "invoice", req.TemplateName)
	assert.Equal(t, "Fatura", req.RequestedFileName())

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = readRequest(path)
	assert.Error(t, err)
}

func TestDumpShowCommand(t *testing.T) {
	for _, compression := range []string{configtypes.CompressionNone, configtypes.CompressionSnappy, configtypes.CompressionLZ4} {
		t.Run(compression, func(t *testing.T) {
			w := dump.NewWriter(config.DumpConfig{Enabled: true, Dir: t.TempDir(), Compression: compression}, zap.NewNop())
			path, err := w.Write("req-1", []byte("<html>boom</html>"))
			require.NoError(t, err)

			var out bytes.Buffer
			cmd := newRootCommand()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"dump", "show", path})
			require.NoError(t, cmd.Execute())
			assert.Equal(t, "<html>boom</html>", out.String())
		})
	}
}

func TestDumpShowCommand_Missing(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"dump", "show", filepath.Join(t.TempDir(), "nope.html")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read dump")
}
