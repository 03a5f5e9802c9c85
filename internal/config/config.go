package config

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "5s"-style strings or integer nanoseconds in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	// RequestTimeout bounds one /analyze request end to end.
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`

	AllowOrigins       []string `yaml:"allow_origins"`
	AllowOriginPattern []string `yaml:"allow_origin_patterns"`
}

// LLMConfig selects and configures the engine that writes the narrative.
type LLMConfig struct {
	// Provider is "azure" (default), "gemini" or "mock".
	Provider    string   `yaml:"provider"`
	Endpoint    string   `yaml:"endpoint"`
	APIKey      string   `yaml:"api_key"`
	APIVersion  string   `yaml:"api_version"`
	Deployment  string   `yaml:"deployment"`
	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
	// MaxRetries bounds retries of throttled or transient completion calls.
	MaxRetries int `yaml:"max_retries"`
}

type LMSConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
	PerPage int      `yaml:"per_page"`
	// MaxRetries bounds retries of throttled or transient Canvas calls.
	MaxRetries int `yaml:"max_retries"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	Env      string     `yaml:"env"`
	LogLevel string     `yaml:"log_level"`
	Version  string     `yaml:"version"`
	HTTP     HTTPConfig `yaml:"http"`
	LLM      LLMConfig  `yaml:"llm"`
	LMS      LMSConfig  `yaml:"lms"`
	Otel     OtelConfig `yaml:"otel"`
}
