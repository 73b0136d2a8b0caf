// Package config loads convtest configuration from YAML.
//
// Loading applies struct-tag defaults first, decodes the file over them,
// applies environment overrides and finally validates the result. A missing
// config file is not an error; the defaults describe a local setup with a
// scripted or HTTP backend and in-memory sessions.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBackendToken  = "CONVTEST_BACKEND_TOKEN"
	EnvRedisPassword = "CONVTEST_REDIS_PASSWORD"
)

// Backend kinds.
const (
	BackendHTTP     = "http"
	BackendScripted = "scripted"
)

// Session kinds.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the complete convtest configuration.
type Config struct {
	Backend Backend `yaml:"backend"`
	Session Session `yaml:"session"`
	Audio   Audio   `yaml:"audio"`
	Store   Store   `yaml:"store"`
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
}

// Backend selects and configures the conversational backend.
type Backend struct {
	Kind       string        `yaml:"kind" default:"http" validate:"oneof=http scripted"`
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries int           `yaml:"max_retries" default:"2" validate:"gte=0,lte=10"`
	Script     string        `yaml:"script"`
}

// Session selects where conversation sessions are tracked.
type Session struct {
	Kind     string        `yaml:"kind" default:"memory" validate:"oneof=memory redis"`
	Addr     string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Kind redis"`
	DB       int           `yaml:"db" default:"0" validate:"gte=0"`
	Password string        `yaml:"password"`
	Prefix   string        `yaml:"prefix" default:"convtest"`
	TTL      time.Duration `yaml:"ttl" default:"24h" validate:"gte=0"`
}

// Audio configures text-to-speech rendering of agent responses.
type Audio struct {
	Enabled     bool          `yaml:"enabled"`
	RendererURL string        `yaml:"renderer_url" validate:"required_if=Enabled true,omitempty,url"`
	Voice       string        `yaml:"voice"`
	BucketURL   string        `yaml:"bucket_url" default:"file:///tmp/convtest-audio?create_dir=true"`
	Prefix      string        `yaml:"prefix"`
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
}

// Store configures run history persistence.
type Store struct {
	Path string `yaml:"path" default:"convtest.db"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr" default:":8080" validate:"required"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

var validate = validator.New()

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// Load reads path. An empty path or a missing file yields the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(nil)
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return finish(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes YAML from r over the defaults. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return finish(data)
}

func finish(data []byte) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvBackendToken); ok {
		cfg.Backend.Token = v
	}
	if v, ok := os.LookupEnv(EnvRedisPassword); ok {
		cfg.Session.Password = v
	}
}

// Validate checks cfg against its validation tags.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
