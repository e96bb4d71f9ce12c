// Package config provides layered configuration for migration runs.
// Priority: defaults < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/lenardflx/ai-data-migration/pkg/checkpoint"
	"github.com/lenardflx/ai-data-migration/pkg/store"
)

// Config holds all migrate configuration.
type Config struct {
	Version int `yaml:"version"`

	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Progress  ProgressConfig  `yaml:"progress"`
	Transform TransformConfig `yaml:"transform"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watch     WatchConfig     `yaml:"watch"`
}

// InputConfig describes the source dataset.
type InputConfig struct {
	Path         string   `yaml:"path"`
	Delimiter    string   `yaml:"delimiter"`
	IDColumn     string   `yaml:"id_column"`
	ActiveColumn string   `yaml:"active_column"`
	Engine       string   `yaml:"engine"`  // csv | duckdb
	Exclude      []string `yaml:"exclude"` // never sent to the transform step
	Required     []string `yaml:"required"`
}

// OutputConfig describes the result store.
type OutputConfig struct {
	Path   string         `yaml:"path"`
	Format string         `yaml:"format"` // json | jsonl | s3
	S3     store.S3Config `yaml:"s3"`
}

// ProgressConfig describes the cursor backend.
type ProgressConfig struct {
	Backend   string                  `yaml:"backend"`   // file | redis | s3
	Secondary string                  `yaml:"secondary"` // optional mirror backend
	Path      string                  `yaml:"path"`
	Redis     checkpoint.RedisConfig  `yaml:"redis"`
	S3        checkpoint.S3Config     `yaml:"s3"`
}

// TransformConfig describes the transform client.
type TransformConfig struct {
	Provider         string        `yaml:"provider"` // openai | echo
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	SystemPrompt     string        `yaml:"system_prompt"`
	SystemPromptFile string        `yaml:"system_prompt_file"`
	Timeout          time.Duration `yaml:"timeout"` // 0 = none
	IDScheme         string        `yaml:"id_scheme"` // uuid | ulid
}

// PipelineConfig tunes batching and retries.
type PipelineConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"` // 0 = retry immediately
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
	File   string `yaml:"file"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Input: InputConfig{
			Path:         "data.csv",
			Delimiter:    ";",
			IDColumn:     "Product_ID",
			ActiveColumn: "is_active",
			Engine:       "csv",
		},
		Output: OutputConfig{
			Path: store.DefaultPath,
		},
		Progress: ProgressConfig{
			Backend: "file",
			Path:    checkpoint.DefaultPath,
			Redis:   checkpoint.DefaultRedisConfig("localhost:6379"),
		},
		Transform: TransformConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Temperature: 0.2,
			IDScheme:    "uuid",
		},
		Pipeline: PipelineConfig{
			ChunkSize:   15,
			MaxAttempts: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "migrate",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// DelimiterRune returns the input delimiter as a rune.
func (c *Config) DelimiterRune() rune {
	if c.Input.Delimiter == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(c.Input.Delimiter)
	return r
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	if c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("pipeline.chunk_size must be at least 1, got %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Input.Delimiter != `\t` && utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		return fmt.Errorf("input.delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	if c.Input.IDColumn != "" && c.Input.IDColumn == c.Input.ActiveColumn {
		return fmt.Errorf("input.id_column and input.active_column must differ")
	}

	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"input.engine", c.Input.Engine, []string{"", "csv", "duckdb"}},
		{"output.format", c.Output.Format, []string{"", store.FormatJSON, store.FormatJSONL, store.FormatS3}},
		{"progress.backend", c.Progress.Backend, []string{"", "file", "redis", "s3"}},
		{"progress.secondary", c.Progress.Secondary, []string{"", "file", "redis", "s3"}},
		{"transform.provider", c.Transform.Provider, []string{"openai", "echo"}},
		{"transform.id_scheme", c.Transform.IDScheme, []string{"", "uuid", "ulid"}},
		{"logging.format", c.Logging.Format, []string{"", "console", "json"}},
	}
	for _, chk := range checks {
		if !contains(chk.allowed, chk.value) {
			return fmt.Errorf("%s: unsupported value %q", chk.field, chk.value)
		}
	}

	if c.Transform.Temperature < 0 || c.Transform.Temperature > 2 {
		return fmt.Errorf("transform.temperature must be within [0, 2], got %v", c.Transform.Temperature)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1], got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// SystemPromptText returns the configured system prompt, reading SystemPromptFile when set.
func (c *Config) SystemPromptText() (string, error) {
	if c.Transform.SystemPromptFile == "" {
		return c.Transform.SystemPrompt, nil
	}
	data, err := os.ReadFile(c.Transform.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(data), nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Transform.APIKey != "" {
		out.Transform.APIKey = "***"
	}
	if out.Progress.Redis.Password != "" {
		out.Progress.Redis.Password = "***"
	}
	if out.Progress.S3.SecretAccessKey != "" {
		out.Progress.S3.SecretAccessKey = "***"
	}
	if out.Output.S3.SecretAccessKey != "" {
		out.Output.S3.SecretAccessKey = "***"
	}
	return &out
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Manager loads and merges configuration sources.
type Manager struct {
	config *Config
	paths  []string

	home   string
	cwd    string
	getenv func(string) string
}

// NewManager creates a manager that reads the user's home and working directories.
func NewManager() *Manager {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return &Manager{
		config: Default(),
		home:   home,
		cwd:    cwd,
		getenv: os.Getenv,
	}
}

// Load merges every source in priority order. explicit names an additional file that must
// exist; the implicit user and project files are skipped when missing.
func (m *Manager) Load(explicit string) error {
	m.config = Default()
	m.paths = nil

	for _, path := range m.implicitPaths() {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	return m.loadEnv()
}

func (m *Manager) implicitPaths() []string {
	var paths []string
	if m.home != "" {
		paths = append(paths, filepath.Join(m.home, ".migrate", "config.yaml"))
	}
	if m.cwd != "" {
		paths = append(paths, filepath.Join(m.cwd, ".migrate.yaml"))
	}
	return paths
}

// loadFile decodes path over the current configuration. Keys absent from the file keep
// their current value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv applies MIGRATE_* and OPENAI_* overrides.
func (m *Manager) loadEnv() error {
	strs := map[string]*string{
		"MIGRATE_INPUT":         &m.config.Input.Path,
		"MIGRATE_DELIMITER":     &m.config.Input.Delimiter,
		"MIGRATE_ENGINE":        &m.config.Input.Engine,
		"MIGRATE_OUTPUT":        &m.config.Output.Path,
		"MIGRATE_OUTPUT_FORMAT": &m.config.Output.Format,
		"MIGRATE_PROGRESS":      &m.config.Progress.Path,
		"MIGRATE_PROGRESS_BACKEND": &m.config.Progress.Backend,
		"MIGRATE_REDIS_ADDR":    &m.config.Progress.Redis.Address,
		"MIGRATE_PROVIDER":      &m.config.Transform.Provider,
		"MIGRATE_MODEL":         &m.config.Transform.Model,
		"MIGRATE_LOG_LEVEL":     &m.config.Logging.Level,
		"MIGRATE_LOG_FORMAT":    &m.config.Logging.Format,
		"MIGRATE_OTLP_ENDPOINT": &m.config.Telemetry.Endpoint,
		"OPENAI_API_KEY":        &m.config.Transform.APIKey,
		"OPENAI_BASE_URL":       &m.config.Transform.BaseURL,
	}
	for key, dst := range strs {
		if v := m.getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MIGRATE_CHUNK_SIZE":   &m.config.Pipeline.ChunkSize,
		"MIGRATE_MAX_ATTEMPTS": &m.config.Pipeline.MaxAttempts,
	}
	for key, dst := range ints {
		v := m.getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := m.getenv("MIGRATE_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MIGRATE_TEMPERATURE: %w", err)
		}
		m.config.Transform.Temperature = f
	}
	return nil
}

// Get returns the merged configuration.
func (m *Manager) Get() *Config {
	return m.config
}

// Paths returns the files that were loaded, in order.
func (m *Manager) Paths() []string {
	return m.paths
}
