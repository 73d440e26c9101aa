// Package config loads the neopaths process configuration from defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	neopaths "github.com/saulfrancisco-ruizacevedo/go-neopaths"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvEndpoint = "NEPTUNE_ENDPOINT"
	EnvPort     = "NEPTUNE_PORT"
	EnvListen   = "NEOPATHS_LISTEN"
	EnvLogLevel = "NEOPATHS_LOG_LEVEL"
)

// Config is the complete process configuration.
type Config struct {
	Neptune NeptuneConfig `yaml:"neptune"`
	Retry   RetryConfig   `yaml:"retry"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Search  SearchConfig  `yaml:"search"`
}

// NeptuneConfig locates the graph database.
type NeptuneConfig struct {
	Host     string `yaml:"endpoint" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	Scheme   string `yaml:"scheme" validate:"omitempty,oneof=bolt bolt+s bolt+ssc neo4j neo4j+s neo4j+ssc"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// RetryConfig tunes the retry envelope around every traversal.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1"`
	Delay       time.Duration `yaml:"delay" validate:"gte=0"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen       string        `yaml:"listen" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// SearchConfig holds search tunables.
type SearchConfig struct {
	EdgePrefix string `yaml:"edge_prefix" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Neptune: NeptuneConfig{Port: 8182, Scheme: "bolt+s"},
		Retry: RetryConfig{
			MaxAttempts: neopaths.DefaultRetryPolicy.MaxAttempts,
			Delay:       neopaths.DefaultRetryPolicy.Delay,
		},
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Log:    LogConfig{Level: "info"},
		Search: SearchConfig{EdgePrefix: neopaths.DefaultEdgePrefix},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment variables that are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEndpoint); ok {
		c.Neptune.Host = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not a port number", EnvPort, v)
		}
		c.Neptune.Port = port
	}
	if v, ok := lookup(EnvListen); ok {
		c.Server.Listen = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
}

// Endpoint converts the database settings for neopaths.Dial.
func (n NeptuneConfig) Endpoint() neopaths.Endpoint {
	return neopaths.Endpoint{
		Scheme:   n.Scheme,
		Host:     n.Host,
		Port:     n.Port,
		Username: n.Username,
		Password: n.Password,
		Database: n.Database,
	}
}

// Policy converts the retry settings.
func (r RetryConfig) Policy() neopaths.RetryPolicy {
	return neopaths.RetryPolicy{MaxAttempts: r.MaxAttempts, Delay: r.Delay}
}
