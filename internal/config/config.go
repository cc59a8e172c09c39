package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/archive"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "resync.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RESYNC_"

	// DefaultAddr is the default inspector listen address.
	DefaultAddr = "localhost:7070"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultMaxPasses is the default host pass budget.
	DefaultMaxPasses = 50

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "resync"

	// DefaultTracerName is the default OpenTelemetry tracer name.
	DefaultTracerName = "resync"

	// DefaultArchiveDir is the default report directory for the disk backend.
	DefaultArchiveDir = ".resync/reports"

	// DefaultScenariosDir is the default directory of scenario files.
	DefaultScenariosDir = "scenarios"
)

// Config represents the complete resync.json configuration.
type Config struct {
	// Server contains inspector server configuration.
	Server ServerConfig `json:"server"`

	// Log contains logging configuration.
	Log LogConfig `json:"log"`

	// Budget contains host pass budget configuration.
	Budget BudgetConfig `json:"budget"`

	// StrictConstants reports changed stable inputs as errors.
	StrictConstants bool `json:"strictConstants,omitempty"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing"`

	// Archive selects where run reports are stored.
	Archive ArchiveConfig `json:"archive"`

	// Scenarios contains scenario discovery configuration.
	Scenarios ScenariosConfig `json:"scenarios"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains inspector server settings.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `json:"addr,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty"`
}

// BudgetConfig contains pass budget settings.
type BudgetConfig struct {
	// MaxPasses is how many passes one flush may run.
	MaxPasses int `json:"maxPasses,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Namespace prefixes every metric name.
	Namespace string `json:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// TracerName is the instrumentation name of session spans.
	TracerName string `json:"tracerName,omitempty"`
}

// ArchiveConfig contains report archive settings.
type ArchiveConfig struct {
	// Backend is "memory", "disk" or "s3".
	Backend string `json:"backend,omitempty"`

	// Dir is the disk backend directory, relative to the config file.
	Dir string `json:"dir,omitempty"`

	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the S3 key prefix.
	Prefix string `json:"prefix,omitempty"`

	// Region is the S3 region.
	Region string `json:"region,omitempty"`

	// Endpoint is an optional S3-compatible endpoint URL.
	Endpoint string `json:"endpoint,omitempty"`
}

// ScenariosConfig contains scenario discovery settings.
type ScenariosConfig struct {
	// Dir holds *.yaml scenario files, relative to the config file.
	Dir string `json:"dir,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server:    ServerConfig{Addr: DefaultAddr},
		Log:       LogConfig{Level: DefaultLogLevel, Format: "text"},
		Budget:    BudgetConfig{MaxPasses: DefaultMaxPasses},
		Metrics:   MetricsConfig{Namespace: DefaultNamespace},
		Tracing:   TracingConfig{TracerName: DefaultTracerName},
		Archive:   ArchiveConfig{Backend: archive.BackendMemory, Dir: DefaultArchiveDir},
		Scenarios: ScenariosConfig{Dir: DefaultScenariosDir},
	}
}

// Load reads configuration from the specified directory.
// It looks for resync.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R305").
				WithDetail("No resync.json found in " + filepath.Dir(path))
		}
		return nil, errors.New("R302").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("R302").
			WithDetail("Failed to parse resync.json: " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Resolve loads resync.json from dir or any parent, falling back to
// defaults when none exists, then applies environment overrides and
// validates the result.
func Resolve(dir string) (*Config, error) {
	cfg := New()
	if root, err := FindProjectRoot(dir); err == nil {
		cfg, err = Load(root)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("R301").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R301").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Budget.MaxPasses == 0 {
		c.Budget.MaxPasses = DefaultMaxPasses
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultTracerName
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = archive.BackendMemory
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = DefaultArchiveDir
	}
	if c.Scenarios.Dir == "" {
		c.Scenarios.Dir = DefaultScenariosDir
	}
}

// ApplyEnv overrides fields from RESYNC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ADDR":              &c.Server.Addr,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
		"METRICS_NAMESPACE": &c.Metrics.Namespace,
		"TRACER_NAME":       &c.Tracing.TracerName,
		"ARCHIVE_BACKEND":   &c.Archive.Backend,
		"ARCHIVE_DIR":       &c.Archive.Dir,
		"ARCHIVE_BUCKET":    &c.Archive.Bucket,
		"ARCHIVE_PREFIX":    &c.Archive.Prefix,
		"ARCHIVE_REGION":    &c.Archive.Region,
		"ARCHIVE_ENDPOINT":  &c.Archive.Endpoint,
		"SCENARIOS_DIR":     &c.Scenarios.Dir,
	}
	for key, field := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*field = v
		}
	}

	if v, ok := lookup(EnvPrefix + "MAX_PASSES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("R301").
				WithDetail(fmt.Sprintf("%sMAX_PASSES must be an integer, got %q", EnvPrefix, v))
		}
		c.Budget.MaxPasses = n
	}
	if v, ok := lookup(EnvPrefix + "STRICT_CONSTANTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("R301").
				WithDetail(fmt.Sprintf("%sSTRICT_CONSTANTS must be a boolean, got %q", EnvPrefix, v))
		}
		c.StrictConstants = b
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Budget.MaxPasses < 1 {
		return errors.New("R301").
			WithDetail("budget.maxPasses must be at least 1")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.New("R301").
			WithDetail(err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("R301").
			WithDetail(fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch c.Archive.Backend {
	case archive.BackendMemory, archive.BackendDisk:
	case archive.BackendS3:
		if c.Archive.Bucket == "" {
			return errors.New("R301").
				WithDetail("archive.bucket is required for the s3 backend")
		}
	default:
		return errors.New("R301").
			WithDetail(fmt.Sprintf("archive.backend must be memory, disk or s3, got %q", c.Archive.Backend))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}

// ArchiveOptions returns the archive settings with Dir resolved against the
// config directory.
func (c *Config) ArchiveOptions() archive.Config {
	return archive.Config{
		Backend:  c.Archive.Backend,
		Dir:      c.resolve(c.Archive.Dir),
		Bucket:   c.Archive.Bucket,
		Prefix:   c.Archive.Prefix,
		Region:   c.Archive.Region,
		Endpoint: c.Archive.Endpoint,
	}
}

// ScenariosPath returns the absolute path to the scenarios directory.
func (c *Config) ScenariosPath() string {
	return c.resolve(c.Scenarios.Dir)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir() == "" {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing resync.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("R305").
				WithDetail("No resync.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
