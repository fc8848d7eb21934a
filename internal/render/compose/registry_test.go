package compose

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

type fixture struct {
	cfg config.TemplatesConfig
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	f := &fixture{cfg: config.TemplatesConfig{
		Dir:         filepath.Join(root, "templates"),
		PartialsDir: filepath.Join(root, "partials"),
		Timezone:    "UTC",
	}}
	require.NoError(t, os.MkdirAll(f.cfg.Dir, 0755))
	return f
}

func (f *fixture) template(t *testing.T, name, body string) {
	writeFile(t, filepath.Join(f.cfg.Dir, name+TemplateExt), body)
}

func (f *fixture) fragment(t *testing.T, rel, body string) {
	writeFile(t, filepath.Join(f.cfg.PartialsDir, rel), body)
}

var fixedClock = WithClock(func() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
})

func TestLoad_TemplatesAndFragments(t *testing.T) {
	f := newFixture(t)
	f.template(t, "invoice", `{{> header}}<p>{{cliente}}</p>{{> footer}}`)
	f.template(t, "receipt", `<p>{{valor}}</p>`)
	writeFile(t, filepath.Join(f.cfg.Dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(f.cfg.Dir, "nested", "deep.hbs"), "templates are not recursive")
	f.fragment(t, "header.hbs", `<h1>{{titulo}}</h1>`)
	f.fragment(t, "layout/footer.hbs", `<footer>fim</footer>`)

	reg, err := Load(f.cfg, zap.NewNop(), fixedClock)
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice", "receipt"}, reg.Templates())
	assert.Equal(t, []string{"footer", "header"}, reg.Fragments())
	assert.NotContains(t, reg.Templates(), "deep")
	assert.Equal(t, filepath.Join(f.cfg.PartialsDir, "layout", "footer.hbs"), reg.FragmentPath("footer"))

	out, err := reg.Compose("invoice", map[string]any{"titulo": "Fatura", "cliente": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, `<h1>Fatura</h1><p>Ana</p><footer>fim</footer>`, out)
}

func TestCompose_TemplateNotFound(t *testing.T) {
	f := newFixture(t)
	f.template(t, "invoice", `x`)

	reg, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = reg.Compose("missing", map[string]any{})
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestCompose_InjectsTimestamp(t *testing.T) {
	f := newFixture(t)
	f.template(t, "stamp", `{{dataAtual}}`)

	reg, err := Load(f.cfg, zap.NewNop(), fixedClock)
	require.NoError(t, err)

	data := map[string]any{}
	out, err := reg.Compose("stamp", data)
	require.NoError(t, err)
	assert.Equal(t, "09/03/2024, 14:05:07", out)
	assert.NotContains(t, data, "dataAtual", "input must not be mutated")

	out, err = reg.Compose("stamp", map[string]any{"dataAtual": "ontem"})
	require.NoError(t, err)
	assert.Equal(t, "ontem", out)
}

func TestCompose_TimezoneApplied(t *testing.T) {
	f := newFixture(t)
	f.cfg.Timezone = "America/Sao_Paulo"
	f.template(t, "stamp", `{{dataAtual}}`)

	reg, err := Load(f.cfg, zap.NewNop(), fixedClock)
	require.NoError(t, err)

	out, err := reg.Compose("stamp", nil)
	require.NoError(t, err)
	assert.Equal(t, "09/03/2024, 11:05:07", out)
}

func TestCompose_JSONHelper(t *testing.T) {
	f := newFixture(t)
	f.template(t, "raw", `<script>var d = {{{json dados}}};</script>`)
	f.template(t, "escaped", `{{json dados}}`)

	reg, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)

	data := map[string]any{"dados": map[string]any{"a": 1.0, "b": []any{"x"}}}

	out, err := reg.Compose("raw", data)
	require.NoError(t, err)
	assert.Equal(t, `<script>var d = {"a":1,"b":["x"]};</script>`, out)

	out, err = reg.Compose("escaped", data)
	require.NoError(t, err)
	assert.Contains(t, out, "&quot;a&quot;")
}

func TestCompose_EachOverSections(t *testing.T) {
	f := newFixture(t)
	f.template(t, "report", `{{#each secoes}}[{{componente}}{{#if imagemBase64}}:img{{/if}}]{{/each}}`)

	reg, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)

	out, err := reg.Compose("report", map[string]any{"secoes": []any{
		map[string]any{"componente": "texto"},
		map[string]any{"componente": "qrcode", "imagemBase64": "data:image/png;base64,AA=="},
	}})
	require.NoError(t, err)
	assert.Equal(t, "[texto][qrcode:img]", out)
}

func TestCompose_MissingFragmentFails(t *testing.T) {
	f := newFixture(t)
	f.template(t, "broken", `{{> nowhere}}`)

	reg, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = reg.Compose("broken", map[string]any{})
	assert.ErrorIs(t, err, ErrCompositionFailed)
}

func TestLoad_DuplicateFragment(t *testing.T) {
	f := newFixture(t)
	f.template(t, "doc", `{{> header}}`)
	f.fragment(t, "a/header.hbs", `A`)
	f.fragment(t, "b/header.hbs", `B`)

	_, err := Load(f.cfg, zap.NewNop())
	require.ErrorIs(t, err, ErrDuplicateFragment)

	f.cfg.AllowPartialOverride = true
	reg, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)

	out, err := reg.Compose("doc", nil)
	require.NoError(t, err)
	assert.Equal(t, "B", out, "later file in walk order wins")
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing templates dir", func(t *testing.T) {
		cfg := config.TemplatesConfig{Dir: filepath.Join(t.TempDir(), "none")}
		_, err := Load(cfg, zap.NewNop())
		assert.ErrorIs(t, err, ErrTemplatesDirAbsent)
	})

	t.Run("template syntax error", func(t *testing.T) {
		f := newFixture(t)
		f.template(t, "bad", `{{#if}}`)
		_, err := Load(f.cfg, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("fragment syntax error", func(t *testing.T) {
		f := newFixture(t)
		f.template(t, "ok", `ok`)
		f.fragment(t, "bad.hbs", `{{#each}}`)
		_, err := Load(f.cfg, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("bad timezone", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Timezone = "Nowhere/Land"
		_, err := Load(f.cfg, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestLoad_MissingPartialsDirIsAllowed(t *testing.T) {
	f := newFixture(t)
	f.template(t, "plain", `hi {{nome}}`)

	reg, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, reg.Fragments())

	out, err := reg.Compose("plain", map[string]any{"nome": "Rui"})
	require.NoError(t, err)
	assert.Equal(t, "hi Rui", out)
}

func TestChecksum(t *testing.T) {
	f := newFixture(t)
	f.template(t, "a", `one`)
	f.fragment(t, "p.hbs", `frag`)

	first, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)
	again, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, first.Checksum(), again.Checksum())
	assert.Len(t, first.Checksum(), 16)

	f.fragment(t, "p.hbs", `changed`)
	changed, err := Load(f.cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotEqual(t, first.Checksum(), changed.Checksum())
}
