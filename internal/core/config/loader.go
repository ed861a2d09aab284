package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/cogcall/internal/infra/rpc/routing"
)

// Load reads configuration from a YAML file. A .env file next to the
// working directory is loaded first so ${VAR} references resolve.
func Load(path string) (*AppConfig, error) {
	loadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Retry defaults are set before parsing so max_retries: 0 is honoured.
	cfg := AppConfig{Retry: routing.DefaultRetryConfig}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvFallbacks(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrEnv loads path when it exists and otherwise builds the
// configuration from environment variables alone.
func LoadOrEnv(path string) (*AppConfig, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	loadDotEnv()
	cfg := AppConfig{Retry: routing.DefaultRetryConfig}
	applyEnvFallbacks(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func loadDotEnv() {
	// Missing .env is normal; existing variables win.
	_ = godotenv.Load()
}

// applyEnvFallbacks fills unset service credentials from the variables the
// Azure samples use.
func applyEnvFallbacks(cfg *AppConfig) {
	s := &cfg.Services

	setIfEmpty(&s.Language.Endpoint, "AZURE_LANGUAGE_ENDPOINT", "LANGUAGE_ENDPOINT")
	setIfEmpty(&s.Language.Key, "AZURE_LANGUAGE_KEY", "LANGUAGE_KEY")

	setIfEmpty(&s.Translator.Endpoint, "TRANSLATOR_ENDPOINT", "AZURE_TRANSLATOR_ENDPOINT")
	setIfEmpty(&s.Translator.Key, "TRANSLATOR_KEY", "AZURE_TRANSLATOR_KEY")
	setIfEmpty(&s.Translator.Region, "TRANSLATOR_REGION", "AZURE_TRANSLATOR_REGION")

	setIfEmpty(&s.Vision.Endpoint, "AZURE_VISION_ENDPOINT", "AZURE_COMPUTER_VISION_ENDPOINT")
	setIfEmpty(&s.Vision.Key, "AZURE_VISION_KEY", "AZURE_COMPUTER_VISION_KEY")

	setIfEmpty(&s.OpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setIfEmpty(&s.OpenAI.Key, "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_KEY")
	setIfEmpty(&s.OpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT_NAME")
	setIfEmpty(&s.OpenAI.APIVersion, "AZURE_OPENAI_API_VERSION")

	setIfEmpty(&cfg.Database.URL, "DATABASE_URL")
	setIfEmpty(&cfg.Redis.URL, "REDIS_URL")

	if cfg.Budget.DailyLimit == 0 {
		if v := os.Getenv("COGCALL_DAILY_BUDGET"); v != "" {
			if limit, err := strconv.ParseFloat(v, 64); err == nil {
				cfg.Budget.DailyLimit = limit
			}
		}
	}
}

func setIfEmpty(dst *string, keys ...string) {
	if *dst != "" {
		return
	}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

func validate(cfg *AppConfig) error {
	services := map[string]ServiceConfig{
		"language":   cfg.Services.Language,
		"translator": cfg.Services.Translator,
		"vision":     cfg.Services.Vision,
		"openai":     cfg.Services.OpenAI,
	}
	for name, svc := range services {
		transports := []string{svc.Transport}
		for _, ep := range svc.Secondary {
			transports = append(transports, ep.Transport)
		}
		for _, t := range transports {
			switch t {
			case "", TransportHTTP, TransportGRPC:
			default:
				return fmt.Errorf("services.%s: unknown transport %q", name, t)
			}
		}
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = 30 * time.Second
	}
	if cfg.Executor.MaxPayloadSize == 0 {
		cfg.Executor.MaxPayloadSize = 5120
	}

	s := &cfg.Services
	if s.Language.APIVersion == "" {
		s.Language.APIVersion = "2023-04-01"
	}
	if s.Translator.Endpoint == "" && s.Translator.Key != "" {
		s.Translator.Endpoint = "https://api.cognitive.microsofttranslator.com"
	}
	if s.Translator.APIVersion == "" {
		s.Translator.APIVersion = "3.0"
	}
	if s.Vision.APIVersion == "" {
		s.Vision.APIVersion = "2024-02-01"
	}
	if s.OpenAI.APIVersion == "" {
		s.OpenAI.APIVersion = "2024-10-21"
	}
	if s.OpenAI.Deployment == "" {
		s.OpenAI.Deployment = "gpt-4o"
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "none"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "cogcall:"
	}

	if cfg.Metering.BatchSize == 0 {
		cfg.Metering.BatchSize = 100
	}
	if cfg.Metering.FlushInterval == 0 {
		cfg.Metering.FlushInterval = 5 * time.Second
	}

	for _, svc := range []*ServiceConfig{&s.Language, &s.Translator, &s.Vision, &s.OpenAI} {
		if svc.Transport == "" {
			svc.Transport = TransportHTTP
		}
	}

	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = 4
	}
}
