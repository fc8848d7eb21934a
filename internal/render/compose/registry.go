// Package compose loads handlebars templates and fragments once at startup and binds
// request data to them.
package compose

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	"github.com/edgecomet/pdfgen/pkg/types"
)

// TemplateExt is the file extension of templates and fragments
const TemplateExt = ".hbs"

// TimestampLayout formats the injected generation timestamp (dd/mm/yyyy, hh:mm:ss)
const TimestampLayout = "02/01/2006, 15:04:05"

var (
	ErrTemplateNotFound   = errors.New("template not found")
	ErrCompositionFailed  = errors.New("template composition failed")
	ErrDuplicateFragment  = errors.New("duplicate fragment name")
	ErrTemplatesDirAbsent = errors.New("templates directory not found")
)

// Registry is immutable after Load and safe for concurrent Compose calls
type Registry struct {
	templates map[string]*raymond.Template
	fragments map[string]string // name -> source path
	checksum  string
	location  *time.Location
	now       func() time.Time
}

type Option func(*Registry)

// WithClock overrides the time source used for the injected timestamp
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Load parses every template in cfg.Dir and every fragment under cfg.PartialsDir
func Load(cfg config.TemplatesConfig, logger *zap.Logger, opts ...Option) (*Registry, error) {
	r := &Registry{
		templates: make(map[string]*raymond.Template),
		fragments: make(map[string]string),
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
		r.location = loc
	}

	fragments, fragmentSources, err := loadFragments(cfg, logger)
	if err != nil {
		return nil, err
	}

	templateSources, err := readTemplates(cfg.Dir)
	if err != nil {
		return nil, err
	}

	for name, src := range templateSources {
		tpl, err := raymond.Parse(src.body)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", src.path, err)
		}
		for fname, ftpl := range fragments {
			tpl.RegisterPartialTemplate(fname, ftpl)
		}
		tpl.RegisterHelper("json", jsonHelper)
		r.templates[name] = tpl
	}

	for name, src := range fragmentSources {
		r.fragments[name] = src.path
	}
	r.checksum = checksum(templateSources, fragmentSources)

	if len(r.templates) == 0 {
		logger.Warn("No templates found", zap.String("dir", cfg.Dir))
	}

	logger.Info("Template registry loaded",
		zap.Int("templates", len(r.templates)),
		zap.Int("fragments", len(r.fragments)),
		zap.String("checksum", r.checksum))

	return r, nil
}

type source struct {
	path string
	body string
}

func readTemplates(dir string) (map[string]source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplatesDirAbsent, dir)
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	out := make(map[string]source)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != TemplateExt {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
		out[baseName(entry.Name())] = source{path: path, body: string(body)}
	}
	return out, nil
}

// loadFragments walks the partials directory recursively in lexical order.
// Fragment names are file base names, so the same name in two sub-directories collides.
func loadFragments(cfg config.TemplatesConfig, logger *zap.Logger) (map[string]*raymond.Template, map[string]source, error) {
	parsed := make(map[string]*raymond.Template)
	sources := make(map[string]source)

	if _, err := os.Stat(cfg.PartialsDir); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Partials directory not found, continuing without fragments", zap.String("dir", cfg.PartialsDir))
		return parsed, sources, nil
	}

	err := filepath.WalkDir(cfg.PartialsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(d.Name()) != TemplateExt {
			return nil
		}

		name := baseName(d.Name())
		if prev, exists := sources[name]; exists {
			if !cfg.AllowPartialOverride {
				return fmt.Errorf("%w %q: %s and %s", ErrDuplicateFragment, name, prev.path, path)
			}
			logger.Warn("Fragment overridden by later file",
				zap.String("fragment", name),
				zap.String("previous", prev.path),
				zap.String("path", path))
		}

		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read fragment %s: %w", path, err)
		}
		tpl, err := raymond.Parse(string(body))
		if err != nil {
			return fmt.Errorf("parse fragment %s: %w", path, err)
		}

		parsed[name] = tpl
		sources[name] = source{path: path, body: string(body)}
		logger.Debug("Fragment loaded", zap.String("fragment", name), zap.String("path", path))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return parsed, sources, nil
}

func baseName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), TemplateExt)
}

func jsonHelper(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(b)
}

func checksum(templates, fragments map[string]source) string {
	h := xxhash.New()
	write := func(kind string, set map[string]source) {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = h.WriteString(kind)
			_, _ = h.WriteString(name)
			_, _ = h.WriteString("\x00")
			_, _ = h.WriteString(set[name].body)
			_, _ = h.WriteString("\x00")
		}
	}
	write("t:", templates)
	write("f:", fragments)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Compose binds data to the named template. A generation timestamp is added under
// dataAtual when the caller did not supply one; data itself is not modified.
func (r *Registry) Compose(name string, data map[string]any) (string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	bound := make(map[string]any, len(data)+1)
	for k, v := range data {
		bound[k] = v
	}
	if v, present := bound[types.DataKeyTimestamp]; !present || v == nil || v == "" {
		bound[types.DataKeyTimestamp] = r.now().In(r.location).Format(TimestampLayout)
	}

	out, err := tpl.Exec(bound)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCompositionFailed, name, err)
	}
	return out, nil
}

// Templates returns the sorted template names
func (r *Registry) Templates() []string {
	return sortedKeys(r.templates)
}

// Fragments returns the sorted fragment names
func (r *Registry) Fragments() []string {
	return sortedKeys(r.fragments)
}

// FragmentPath returns the file a fragment was loaded from
func (r *Registry) FragmentPath(name string) string {
	return r.fragments[name]
}

// Checksum identifies the loaded template set; it changes with any source edit
func (r *Registry) Checksum() string {
	return r.checksum
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
