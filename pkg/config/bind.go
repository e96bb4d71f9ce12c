package config

import (
	"github.com/lenardflx/ai-data-migration/pkg/checkpoint"
	"github.com/lenardflx/ai-data-migration/pkg/logging"
	"github.com/lenardflx/ai-data-migration/pkg/source"
	"github.com/lenardflx/ai-data-migration/pkg/store"
	"github.com/lenardflx/ai-data-migration/pkg/telemetry"
	"github.com/lenardflx/ai-data-migration/pkg/transform"
)

// SourceOptions maps the input section.
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		Path:         c.Input.Path,
		Delimiter:    c.DelimiterRune(),
		IDColumn:     c.Input.IDColumn,
		ActiveColumn: c.Input.ActiveColumn,
		Engine:       c.Input.Engine,
	}
}

// StoreConfig maps the output section.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Format: c.Output.Format,
		Path:   c.Output.Path,
		S3:     c.Output.S3,
	}
}

// CheckpointConfig maps the progress section.
func (c *Config) CheckpointConfig() checkpoint.Config {
	return checkpoint.Config{
		Backend:   c.Progress.Backend,
		Secondary: c.Progress.Secondary,
		Path:      c.Progress.Path,
		Redis:     c.Progress.Redis,
		S3:        c.Progress.S3,
	}
}

// OpenAIConfig maps the transform section. systemPrompt overrides the configured prompt when non-empty.
func (c *Config) OpenAIConfig(systemPrompt string) transform.OpenAIConfig {
	cfg := transform.OpenAIConfig{
		BaseURL:      c.Transform.BaseURL,
		APIKey:       c.Transform.APIKey,
		Model:        c.Transform.Model,
		Temperature:  c.Transform.Temperature,
		SystemPrompt: c.Transform.SystemPrompt,
		Timeout:      c.Transform.Timeout,
		Render: transform.RenderOptions{
			Exclude:  c.Input.Exclude,
			Required: c.Input.Required,
		},
	}
	if systemPrompt != "" {
		cfg.SystemPrompt = systemPrompt
	}
	return cfg
}

// LoggingConfig maps the logging section.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
	}
}

// TelemetryConfig maps the telemetry section.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig(c.Telemetry.ServiceName)
	cfg.Enabled = c.Telemetry.Enabled
	cfg.Endpoint = c.Telemetry.Endpoint
	cfg.Insecure = c.Telemetry.Insecure
	cfg.SampleRatio = c.Telemetry.SampleRate
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}
