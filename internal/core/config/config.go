package config

import (
	"time"

	"github.com/vietddude/cogcall/internal/batch"
	"github.com/vietddude/cogcall/internal/core/domain"
	redisclient "github.com/vietddude/cogcall/internal/infra/redis"
	"github.com/vietddude/cogcall/internal/infra/rpc/budget"
	"github.com/vietddude/cogcall/internal/infra/rpc/routing"
	"github.com/vietddude/cogcall/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logging  LoggingConfig       `yaml:"logging"`
	Retry    routing.RetryConfig `yaml:"retry"`
	Executor ExecutorConfig      `yaml:"executor"`
	Services ServicesConfig      `yaml:"services"`
	Pricing  PricingConfig       `yaml:"pricing"`
	Budget   BudgetConfig        `yaml:"budget"`
	Cache    CacheConfig         `yaml:"cache"`
	Redis    redisclient.Config  `yaml:"redis"`
	Database postgres.Config     `yaml:"database"`
	Metering MeteringConfig      `yaml:"metering"`
	Batch    batch.Config        `yaml:"batch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ExecutorConfig holds per-attempt defaults shared by all services.
type ExecutorConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxPayloadSize  int           `yaml:"max_payload_size"`
	MaxResponseSize int64         `yaml:"max_response_size"`
}

// ServicesConfig holds one entry per Azure service.
type ServicesConfig struct {
	Language   ServiceConfig `yaml:"language"`
	Translator ServiceConfig `yaml:"translator"`
	Vision     ServiceConfig `yaml:"vision"`
	OpenAI     ServiceConfig `yaml:"openai"`
}

// ServiceConfig holds settings for one Azure service.
type ServiceConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Key        string `yaml:"key"`
	Region     string `yaml:"region"`
	APIVersion string `yaml:"api_version"`
	Deployment string `yaml:"deployment"` // Azure OpenAI only
	// Timeout and MaxPayloadSize override the executor defaults.
	Timeout        time.Duration `yaml:"timeout"`
	MaxPayloadSize int           `yaml:"max_payload_size"`
	// Transport is "http" (default) or "grpc". A grpc endpoint is a
	// gateway reached with plain host:port or an https:// target.
	Transport string `yaml:"transport"`
	// GatewayMethod is the full gRPC method that serves operations without
	// a generated client, e.g. /cogcall.v1.Gateway/Invoke.
	GatewayMethod string `yaml:"gateway_method"`
	// Secondary endpoints take traffic while the primary is throttled or blocked.
	Secondary []EndpointConfig `yaml:"secondary"`
}

// EndpointConfig is an additional regional endpoint of a service.
type EndpointConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
	Region   string `yaml:"region"`
	// Transport overrides the service transport for this endpoint.
	Transport string `yaml:"transport"`
}

// Transport names accepted by ServiceConfig.Transport.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Enabled reports whether the service has an endpoint.
func (s ServiceConfig) Enabled() bool {
	return s.Endpoint != ""
}

// PricingConfig overrides list prices, keyed by operation kind.
type PricingConfig struct {
	DefaultRate float64            `yaml:"default_rate"`
	Rates       map[string]float64 `yaml:"rates"`
	PerCall     map[string]float64 `yaml:"per_call"`
}

// PriceTable merges the overrides over the default price table.
func (p PricingConfig) PriceTable() budget.PriceTable {
	table := budget.DefaultPriceTable()
	if p.DefaultRate > 0 {
		table.Default = p.DefaultRate
	}
	for kind, rate := range p.Rates {
		table.Rates[domain.OperationKind(kind)] = rate
	}
	for kind, price := range p.PerCall {
		table.PerCall[domain.OperationKind(kind)] = price
	}
	return table
}

// BudgetConfig holds the daily spend cap. Zero disables it.
type BudgetConfig struct {
	DailyLimit float64 `yaml:"daily_limit"`
}

// CacheConfig selects the response cache backend: none, memory or redis.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// MeteringConfig controls call record persistence.
type MeteringConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	// Retention is how long call records are kept; 0 keeps them forever.
	Retention time.Duration `yaml:"retention"`
}
