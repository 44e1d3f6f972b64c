// Package config loads viewer settings from defaults, an optional YAML file
// and METROVIEW_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const EnvPrefix = "METROVIEW_"

type Config struct {
	HTTPAddr        string        `yaml:"http_addr" koanf:"http_addr"`
	LogLevel        string        `yaml:"log_level" koanf:"log_level"`
	RouteServiceURL string        `yaml:"route_service_url" koanf:"route_service_url"`
	DiagramPath     string        `yaml:"diagram_path" koanf:"diagram_path"`
	StationsPath    string        `yaml:"stations_path" koanf:"stations_path"`
	DefaultStrategy string        `yaml:"default_strategy" koanf:"default_strategy"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	ContainerWidth  float64       `yaml:"container_width" koanf:"container_width"`
	ContainerHeight float64       `yaml:"container_height" koanf:"container_height"`
	FrameInterval   time.Duration `yaml:"frame_interval" koanf:"frame_interval"`
	SmoothScroll    time.Duration `yaml:"smooth_scroll" koanf:"smooth_scroll"`
	CORSOrigins     []string      `yaml:"cors_origins" koanf:"cors_origins"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        ":8081",
		LogLevel:        "info",
		RouteServiceURL: "http://127.0.0.1:5001",
		DiagramPath:     "static/map.svg",
		StationsPath:    "static/stations_gz.json",
		DefaultStrategy: "stations",
		RequestTimeout:  10 * time.Second,
		ContainerWidth:  1280,
		ContainerHeight: 720,
		FrameInterval:   16 * time.Millisecond,
		SmoothScroll:    300 * time.Millisecond,
	}
}

// Load reads configuration from the given YAML file, if it exists, then
// overlays environment variables (METROVIEW_HTTP_ADDR -> http_addr).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "cors_origins" {
		var out []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
		return key, out
	}
	return key, value
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace":   true,
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
	"fatal":   true,
	"panic":   true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http_addr is required")
	}
	if !validLogLevels[strings.ToLower(strings.TrimSpace(c.LogLevel))] {
		return fmt.Errorf("invalid log_level %q: must be one of trace, debug, info, warn, error", c.LogLevel)
	}

	if c.RouteServiceURL == "" {
		return fmt.Errorf("route_service_url is required")
	}
	u, err := url.Parse(c.RouteServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid route_service_url %q: must be an absolute http(s) url", c.RouteServiceURL)
	}

	if c.DiagramPath == "" {
		return fmt.Errorf("diagram_path is required")
	}
	if strings.TrimSpace(c.DefaultStrategy) == "" {
		return fmt.Errorf("default_strategy is required")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive")
	}
	if c.SmoothScroll < 0 {
		return fmt.Errorf("smooth_scroll must be non-negative")
	}
	if c.ContainerWidth <= 0 || c.ContainerHeight <= 0 {
		return fmt.Errorf("container_width and container_height must be positive")
	}
	return nil
}
