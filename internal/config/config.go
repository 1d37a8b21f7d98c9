package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Server holds listener and lifecycle settings.
type Server struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
}

// Static describes the compiled front-end bundle on disk.
type Static struct {
	Dir         string        `yaml:"dir"`
	Index       string        `yaml:"index"`
	SPAFallback bool          `yaml:"spaFallback"`
	CacheMaxAge time.Duration `yaml:"cacheMaxAge"`
}

// Config is the full server configuration.
// Build carries the front-end tool options verbatim; the server only echoes it.
type Config struct {
	Server Server         `yaml:"server"`
	Static Static         `yaml:"static"`
	Build  map[string]any `yaml:"build"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:              8080,
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		Static: Static{
			Dir:         "dist",
			Index:       "index.html",
			SPAFallback: true,
			CacheMaxAge: 365 * 24 * time.Hour,
		},
	}
}

// Load assembles configuration from defaults, an optional .env file, the YAML
// file at path, and environment variables, in that order of precedence.
// An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.mergeYAML(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// mergeEnv applies the supported environment overrides.
func (c *Config) mergeEnv(lookup lookupFunc) error {
	if v, ok := lookup("HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT %q: %w", ErrInvalid, v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("SHUTDOWN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SHUTDOWN_TIMEOUT %q: %w", ErrInvalid, v, err)
		}
		c.Server.ShutdownTimeout = d
	}
	if v, ok := lookup("STATIC_DIR"); ok && v != "" {
		c.Static.Dir = v
	}
	if v, ok := lookup("STATIC_INDEX"); ok && v != "" {
		c.Static.Index = v
	}
	if v, ok := lookup("SPA_FALLBACK"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: SPA_FALLBACK %q: %w", ErrInvalid, v, err)
		}
		c.Static.SPAFallback = b
	}
	if v, ok := lookup("CACHE_MAX_AGE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: CACHE_MAX_AGE %q: %w", ErrInvalid, v, err)
		}
		c.Static.CacheMaxAge = d
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Server.Port)
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"readTimeout", c.Server.ReadTimeout},
		{"readHeaderTimeout", c.Server.ReadHeaderTimeout},
		{"writeTimeout", c.Server.WriteTimeout},
		{"idleTimeout", c.Server.IdleTimeout},
		{"shutdownTimeout", c.Server.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, t.name)
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: maxBodyBytes must be positive", ErrInvalid)
	}
	if c.Static.Dir == "" {
		return fmt.Errorf("%w: static dir is empty", ErrInvalid)
	}
	if c.Static.Index == "" {
		return fmt.Errorf("%w: static index is empty", ErrInvalid)
	}
	if c.Static.CacheMaxAge < 0 {
		return fmt.Errorf("%w: cacheMaxAge is negative", ErrInvalid)
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
