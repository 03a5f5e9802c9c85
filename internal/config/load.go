package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/courselens-backend/internal/platform/apierr"
	"github.com/yungbote/courselens-backend/internal/platform/envutil"
)

const (
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Defaults returns the configuration Load starts from. Outbound retries are
// off; operators opt in with lms.max_retries and llm.max_retries.
func Defaults() *Config {
	return &Config{
		Env:     "development",
		Version: "dev",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{5 * time.Second},
			ShutdownTimeout:   Duration{15 * time.Second},
			RequestTimeout:    Duration{3 * time.Minute},
			MaxUploadBytes:    32 << 20,
			AllowOrigins:      []string{"http://localhost:3000"},
			AllowOriginPattern: []string{
				`^https://.*\.vercel\.app$`,
			},
		},
		LLM: LLMConfig{
			Provider:    ProviderAzure,
			Temperature: 0.3,
			Timeout:     Duration{90 * time.Second},
		},
		LMS: LMSConfig{
			Timeout: Duration{30 * time.Second},
			PerPage: 100,
		},
		Otel: OtelConfig{
			ServiceName: "courselens",
			SampleRatio: 0.1,
		},
	}
}

// Load builds the process configuration: defaults, then the YAML file named by
// COURSELENS_CONFIG_PATH (or ./config/config.yaml when present), then
// environment overrides. Missing required settings yield a configuration error.
func Load() (*Config, error) {
	cfg := Defaults()

	path := strings.TrimSpace(os.Getenv("COURSELENS_CONFIG_PATH"))
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, apierr.Configuration(err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apierr.Configuration(err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := envutil.First("LOG_MODE", "COURSELENS_ENV"); v != "" {
		cfg.Env = v
	}
	cfg.LogLevel = envutil.String("LOG_LEVEL", cfg.LogLevel)
	cfg.Version = envutil.String("COURSELENS_VERSION", cfg.Version)

	if p := envutil.String("PORT", ""); p != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(p, ":")
	}
	cfg.HTTP.Addr = envutil.String("COURSELENS_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.RequestTimeout.Duration = envutil.Duration("COURSELENS_REQUEST_TIMEOUT", cfg.HTTP.RequestTimeout.Duration)
	if v := envutil.String("COURSELENS_ALLOW_ORIGINS", ""); v != "" {
		cfg.HTTP.AllowOrigins = splitList(v)
	}

	cfg.LLM.Provider = envutil.String("LLM_PROVIDER", cfg.LLM.Provider)
	switch strings.ToLower(cfg.LLM.Provider) {
	case ProviderGemini:
		cfg.LLM.APIKey = envutil.String("GEMINI_API_KEY", cfg.LLM.APIKey)
		cfg.LLM.Deployment = envutil.String("GEMINI_MODEL", cfg.LLM.Deployment)
	default:
		cfg.LLM.Endpoint = envutil.String("AZURE_OPENAI_ENDPOINT", cfg.LLM.Endpoint)
		cfg.LLM.APIKey = envutil.String("AZURE_OPENAI_API_KEY", cfg.LLM.APIKey)
		cfg.LLM.APIVersion = envutil.String("AZURE_OPENAI_API_VERSION", cfg.LLM.APIVersion)
		cfg.LLM.Deployment = envutil.String("AZURE_OPENAI_DEPLOYMENT", cfg.LLM.Deployment)
	}
	cfg.LLM.Timeout.Duration = envutil.Duration("LLM_TIMEOUT", cfg.LLM.Timeout.Duration)
	cfg.LLM.MaxRetries = envutil.Int("LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.LMS.BaseURL = envutil.String("CANVAS_BASE_URL", cfg.LMS.BaseURL)
	cfg.LMS.Token = envutil.String("CANVAS_TOKEN", cfg.LMS.Token)
	cfg.LMS.Timeout.Duration = envutil.Duration("CANVAS_TIMEOUT", cfg.LMS.Timeout.Duration)
	cfg.LMS.MaxRetries = envutil.Int("CANVAS_MAX_RETRIES", cfg.LMS.MaxRetries)

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
}

// Validate normalizes cfg in place and reports the first missing or invalid
// setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 32 << 20
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.Endpoint = strings.TrimRight(strings.TrimSpace(c.LLM.Endpoint), "/")
	switch c.LLM.Provider {
	case "", ProviderAzure:
		c.LLM.Provider = ProviderAzure
		if err := requireAll(map[string]string{
			"AZURE_OPENAI_ENDPOINT":    c.LLM.Endpoint,
			"AZURE_OPENAI_API_KEY":     c.LLM.APIKey,
			"AZURE_OPENAI_API_VERSION": c.LLM.APIVersion,
			"AZURE_OPENAI_DEPLOYMENT":  c.LLM.Deployment,
		}); err != nil {
			return err
		}
	case ProviderGemini:
		if err := requireAll(map[string]string{
			"GEMINI_API_KEY": c.LLM.APIKey,
			"GEMINI_MODEL":   c.LLM.Deployment,
		}); err != nil {
			return err
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f out of range", c.LLM.Temperature)
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	}

	c.LMS.BaseURL = strings.TrimRight(strings.TrimSpace(c.LMS.BaseURL), "/")
	if err := requireAll(map[string]string{
		"CANVAS_BASE_URL": c.LMS.BaseURL,
		"CANVAS_TOKEN":    c.LMS.Token,
	}); err != nil {
		return err
	}
	if c.LMS.PerPage <= 0 {
		c.LMS.PerPage = 100
	}
	if c.LMS.MaxRetries < 0 {
		c.LMS.MaxRetries = 0
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return errors.New("otel sample_ratio must be within [0,1]")
	}
	return nil
}

func requireAll(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
