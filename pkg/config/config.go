// Package config loads rollcall settings from defaults, an optional YAML
// file, ROLLCALL_* environment variables and command-line overrides, in
// that order of increasing precedence.
package config

import (
	"time"

	"github.com/coolbeans/rollcall/pkg/pdftext"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ROLLCALL_"

// Config is the complete rollcall configuration.
type Config struct {
	Rules  RulesConfig  `koanf:"rules"`
	Output OutputConfig `koanf:"output"`
	Batch  BatchConfig  `koanf:"batch"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	PDF    PDFConfig    `koanf:"pdf"`
}

// RulesConfig locates rule set overrides.
type RulesConfig struct {
	// Dir holds YAML rule sets that override or extend the built-ins. A
	// missing directory is not an error.
	Dir   string `koanf:"dir"`
	Watch bool   `koanf:"watch"`
}

// OutputConfig controls delimited output.
type OutputConfig struct {
	Delimiter string `koanf:"delimiter" validate:"oneof=csv psv"`
	Dir       string `koanf:"dir"`
}

// BatchConfig controls directory mode.
type BatchConfig struct {
	Workers int    `koanf:"workers" validate:"min=1,max=64"`
	Pattern string `koanf:"pattern" validate:"required"`
}

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	MaxUploadMB  int64         `koanf:"max_upload_mb" validate:"min=1"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// PDFConfig holds printed-page bookkeeping for PDF extraction.
type PDFConfig struct {
	Chapters []pdftext.Chapter `koanf:"chapters" validate:"dive"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Rules: RulesConfig{
			Dir: "rules",
		},
		Output: OutputConfig{
			Delimiter: "csv",
			Dir:       ".",
		},
		Batch: BatchConfig{
			Workers: 4,
			Pattern: "*.txt",
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxUploadMB:  32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		PDF: PDFConfig{
			Chapters: pdftext.DefaultChapters(),
		},
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}
