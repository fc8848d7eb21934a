package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edgecomet/pdfgen/internal/common/configtypes"
	"github.com/edgecomet/pdfgen/pkg/types"
)

type (
	RedisConfig   = configtypes.RedisConfig
	LogConfig     = configtypes.LogConfig
	MetricsConfig = configtypes.MetricsConfig
)

// Environment variables honoured on top of the YAML file
const (
	EnvRedisURL   = "REDIS_URL"
	EnvMaxRetries = "MAX_RETRIES"
	EnvPort       = "PORT"
)

const (
	// SafetyMargin is added to the worst case pipeline duration for the HTTP server timeout
	SafetyMargin = 10 * time.Second

	defaultServerID         = "pdf-service"
	defaultListen           = ":3000"
	defaultRedisAddr        = "localhost:6379"
	defaultLockTTL          = 30 * time.Second
	defaultRetryAfter       = 5 * time.Second
	defaultLockOpTimeout    = 2 * time.Second
	defaultTemplatesDir     = "templates"
	defaultPartialsDir      = "partials"
	defaultMaxAttempts      = 3
	defaultBackoff          = 1 * time.Second
	defaultAttemptTimeout   = 60 * time.Second
	defaultLoadTimeout      = 30 * time.Second
	defaultNetworkIdle      = 500 * time.Millisecond
	defaultPaper            = "A4"
	defaultDumpDir          = "dumps"
	defaultMetricsListen    = ":9090"
	defaultMetricsPath      = "/metrics"
	defaultMetricsNamespace = "pdfgen"
)

// Config is the PDF service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Lock      LockConfig      `yaml:"lock"`
	Templates TemplatesConfig `yaml:"templates"`
	Render    RenderConfig    `yaml:"render"`
	Dump      DumpConfig      `yaml:"dump"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	ID     string `yaml:"id"`
	Listen string `yaml:"listen"`
}

// LockConfig controls the distributed dedup lock
type LockConfig struct {
	TTL              types.Duration `yaml:"ttl"`
	RetryAfter       types.Duration `yaml:"retry_after"`
	OperationTimeout types.Duration `yaml:"operation_timeout"`
}

// TemplatesConfig locates the handlebars templates and fragments loaded at startup
type TemplatesConfig struct {
	Dir                  string `yaml:"dir"`
	PartialsDir          string `yaml:"partials_dir"`
	Timezone             string `yaml:"timezone,omitempty"`
	AllowPartialOverride bool   `yaml:"allow_partial_override"`
}

// RenderConfig controls the browser backend and its retry budget
type RenderConfig struct {
	MaxAttempts    int            `yaml:"max_attempts"`
	Backoff        types.Duration `yaml:"backoff"`
	AttemptTimeout types.Duration `yaml:"attempt_timeout"`
	LoadTimeout    types.Duration `yaml:"load_timeout"`
	NetworkIdle    types.Duration `yaml:"network_idle"`
	Paper          string         `yaml:"paper"`
	ChromePath     string         `yaml:"chrome_path,omitempty"`
}

// DumpConfig enables writing compiled markup of failed renders to disk
type DumpConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

// CalculateServerTimeout returns the worst case time a single request may hold a connection:
// every attempt timing out plus the backoff between them plus SafetyMargin
func (r *RenderConfig) CalculateServerTimeout() time.Duration {
	attempts := time.Duration(r.MaxAttempts)
	total := attempts*time.Duration(r.AttemptTimeout) + (attempts-1)*time.Duration(r.Backoff)
	return total + SafetyMargin
}

// Load reads, defaults, overrides from environment, and validates a config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, os.Getenv)
}

// Parse builds a Config from YAML bytes. getenv supplies environment overrides (may be nil).
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := unmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if getenv != nil {
		if err := cfg.applyEnv(getenv); err != nil {
			return nil, fmt.Errorf("invalid environment override: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ID == "" {
		cfg.Server.ID = defaultServerID
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultListen
	}

	if cfg.Redis.Addr == "" && cfg.Redis.URL == "" {
		cfg.Redis.Addr = defaultRedisAddr
	}

	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = types.Duration(defaultLockTTL)
	}
	if cfg.Lock.RetryAfter == 0 {
		cfg.Lock.RetryAfter = types.Duration(defaultRetryAfter)
	}
	if cfg.Lock.OperationTimeout == 0 {
		cfg.Lock.OperationTimeout = types.Duration(defaultLockOpTimeout)
	}

	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = defaultTemplatesDir
	}
	if cfg.Templates.PartialsDir == "" {
		cfg.Templates.PartialsDir = defaultPartialsDir
	}

	if cfg.Render.MaxAttempts == 0 {
		cfg.Render.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Render.Backoff == 0 {
		cfg.Render.Backoff = types.Duration(defaultBackoff)
	}
	if cfg.Render.AttemptTimeout == 0 {
		cfg.Render.AttemptTimeout = types.Duration(defaultAttemptTimeout)
	}
	if cfg.Render.LoadTimeout == 0 {
		cfg.Render.LoadTimeout = types.Duration(defaultLoadTimeout)
	}
	if cfg.Render.NetworkIdle == 0 {
		cfg.Render.NetworkIdle = types.Duration(defaultNetworkIdle)
	}
	if cfg.Render.Paper == "" {
		cfg.Render.Paper = defaultPaper
	}

	if cfg.Dump.Dir == "" {
		cfg.Dump.Dir = defaultDumpDir
	}
	if cfg.Dump.Compression == "" {
		cfg.Dump.Compression = configtypes.CompressionNone
	}

	// If both outputs are disabled (zero values), enable console by default
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = defaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}
}

func (cfg *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvRedisURL); v != "" {
		cfg.Redis.URL = v
	}

	if v := getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %q", EnvMaxRetries, v)
		}
		cfg.Render.MaxAttempts = n
	}

	if v := getenv(EnvPort); v != "" {
		listen, err := configtypes.WithPort(cfg.Server.Listen, v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Server.Listen = listen
	}

	return nil
}

// Validate checks configuration validity
func (cfg *Config) Validate() error {
	if err := configtypes.ValidateListenAddress(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	if cfg.Redis.Addr == "" && cfg.Redis.URL == "" {
		return fmt.Errorf("redis.addr or redis.url is required")
	}

	if cfg.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive")
	}
	if cfg.Lock.RetryAfter <= 0 {
		return fmt.Errorf("lock.retry_after must be positive")
	}
	if cfg.Lock.OperationTimeout <= 0 {
		return fmt.Errorf("lock.operation_timeout must be positive")
	}

	if cfg.Templates.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Templates.Timezone); err != nil {
			return fmt.Errorf("invalid templates.timezone: %w", err)
		}
	}

	if cfg.Render.MaxAttempts <= 0 {
		return fmt.Errorf("render.max_attempts must be positive, got %d", cfg.Render.MaxAttempts)
	}
	if cfg.Render.Backoff < 0 {
		return fmt.Errorf("render.backoff must be >= 0")
	}
	if cfg.Render.AttemptTimeout <= 0 {
		return fmt.Errorf("render.attempt_timeout must be positive")
	}
	if cfg.Render.LoadTimeout <= 0 {
		return fmt.Errorf("render.load_timeout must be positive")
	}
	if cfg.Render.NetworkIdle <= 0 {
		return fmt.Errorf("render.network_idle must be positive")
	}
	if _, ok := configtypes.LookupPaper(cfg.Render.Paper); !ok {
		return fmt.Errorf("invalid render.paper: %s (must be A3, A4, A5, Letter or Legal)", cfg.Render.Paper)
	}

	switch cfg.Dump.Compression {
	case configtypes.CompressionNone, configtypes.CompressionSnappy, configtypes.CompressionLZ4:
	default:
		return fmt.Errorf("invalid dump.compression: %s (must be none, snappy or lz4)", cfg.Dump.Compression)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return err
	}

	return validateMetrics(&cfg.Metrics, cfg.Server.Listen)
}

// Warnings reports settings that are valid but likely to misbehave at runtime
func (cfg *Config) Warnings() []string {
	var warnings []string
	if worst := cfg.Render.CalculateServerTimeout() - SafetyMargin; worst > time.Duration(cfg.Lock.TTL) {
		warnings = append(warnings, fmt.Sprintf(
			"lock.ttl (%s) is shorter than the worst case render time (%s); the lock may expire while a render is still running",
			time.Duration(cfg.Lock.TTL), worst))
	}
	return warnings
}

func validateLog(log *LogConfig) error {
	validLogLevels := map[string]bool{
		configtypes.LogLevelDebug:  true,
		configtypes.LogLevelInfo:   true,
		configtypes.LogLevelWarn:   true,
		configtypes.LogLevelError:  true,
		configtypes.LogLevelDPanic: true,
		configtypes.LogLevelPanic:  true,
		configtypes.LogLevelFatal:  true,
	}
	if !validLogLevels[log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", log.Level)
	}

	if log.Console.Enabled && log.Console.Format != configtypes.LogFormatJSON && log.Console.Format != configtypes.LogFormatConsole {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", log.Console.Format)
	}

	if log.File.Enabled {
		if log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		if log.File.Format != configtypes.LogFormatJSON && log.File.Format != configtypes.LogFormatText {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", log.File.Format)
		}
		r := log.File.Rotation
		if r.MaxSize < 0 || r.MaxAge < 0 || r.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation values must be >= 0")
		}
	}

	return nil
}

var metricsNamespaceRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateMetrics(m *MetricsConfig, serverListen string) error {
	if m.Enabled {
		if err := configtypes.ValidateListenAddress(m.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}

		metricsPort, err1 := configtypes.GetPortFromListen(m.Listen)
		serverPort, err2 := configtypes.GetPortFromListen(serverListen)
		if err1 == nil && err2 == nil && metricsPort == serverPort {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d) when metrics enabled", metricsPort, serverPort)
		}
	}

	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", m.Path)
	}

	if !metricsNamespaceRe.MatchString(m.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", m.Namespace)
	}

	return nil
}

// GetConfigPath resolves the config file path to an absolute path that exists
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
