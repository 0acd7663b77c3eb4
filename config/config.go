// Package config loads the YAML configuration of the generations service and CLI.
//
// Values of the form ${VAR} are expanded from the process environment before parsing.
// Fields missing from the file keep the values of Default.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/generations/credentials"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	EnvFiles    []string          `yaml:"env_files"`
	Credentials map[string]string `yaml:"credentials"` // host-context fallback, consulted last
	Templates   TemplatesConfig   `yaml:"templates"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TemplatesConfig points at the directory of prompt template documents. Empty disables templates.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// ProvidersConfig holds per-provider defaults.
type ProvidersConfig struct {
	OpenAI  APIConfig     `yaml:"openai"`
	Google  APIConfig     `yaml:"google"`
	Bedrock BedrockConfig `yaml:"bedrock"`
}

// APIConfig configures an API-key provider.
type APIConfig struct {
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	BaseURL        string `yaml:"base_url"`
}

// BedrockConfig configures the bedrock provider.
type BedrockConfig struct {
	Model            string       `yaml:"model"`
	EmbeddingModel   string       `yaml:"embedding_model"`
	Region           string       `yaml:"region"`
	Endpoint         string       `yaml:"endpoint"`
	EmbedConcurrency int          `yaml:"embed_concurrency"`
	Speech           SpeechConfig `yaml:"speech"`
}

// SpeechConfig overrides the Polly defaults. Empty fields keep the provider defaults.
type SpeechConfig struct {
	OutputPath   string `yaml:"output_path"`
	Language     string `yaml:"language"`
	OutputFormat string `yaml:"output_format"`
	Voice        string `yaml:"voice"`
	Engine       string `yaml:"engine"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", MaxBodyBytes: 1 << 20},
		Log:    LogConfig{Level: "info", Format: FormatText},
	}
}

// Load reads, expands and validates the YAML file at path.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: resolve path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", absPath, err)
	}
	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return Config{}, fmt.Errorf("config: %q: %w", absPath, err)
	}
	for i, p := range cfg.EnvFiles {
		if !filepath.IsAbs(p) {
			cfg.EnvFiles[i] = filepath.Join(filepath.Dir(absPath), p)
		}
	}
	if cfg.Templates.Dir != "" && !filepath.IsAbs(cfg.Templates.Dir) {
		cfg.Templates.Dir = filepath.Join(filepath.Dir(absPath), cfg.Templates.Dir)
	}
	return cfg, nil
}

// Parse decodes data over Default after expanding ${VAR} references with lookup, then validates.
// Unset variables expand to the empty string.
func Parse(data []byte, lookup func(string) (string, bool)) (Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot start with.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("%w: server.addr %q: %w", ErrInvalid, c.Server.Addr, err)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server.max_body_bytes must not be negative", ErrInvalid)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: log.format %q must be %q or %q", ErrInvalid, c.Log.Format, FormatText, FormatJSON)
	}
	if c.Providers.Bedrock.EmbedConcurrency < 0 {
		return fmt.Errorf("%w: providers.bedrock.embed_concurrency must not be negative", ErrInvalid)
	}
	for i, p := range c.EnvFiles {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: env_files[%d] is empty", ErrInvalid, i)
		}
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q: %w", ErrInvalid, l.Level, err)
	}
	return lvl, nil
}

// Handler builds the slog handler writing to w.
func (l LogConfig) Handler(w io.Writer) (slog.Handler, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts), nil
	}
	return slog.NewTextHandler(w, opts), nil
}

// Logger builds a logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	h, err := l.Handler(w)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

// Resolver builds the credential resolver: process environment, then env files, then the
// credentials section.
func (c Config) Resolver(opts ...credentials.Option) (*credentials.Resolver, error) {
	values, err := credentials.ReadEnvFiles(c.EnvFiles...)
	if err != nil {
		return nil, err
	}
	base := []credentials.Option{
		credentials.WithEnvValues(values),
		credentials.WithFallback(c.Credentials),
	}
	return credentials.New(append(base, opts...)...), nil
}
