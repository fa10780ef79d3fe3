// Package core provides fundamental abstractions and interfaces shared across
// the retrieval, planning and execution packages: logging, structured errors,
// circuit breaking and configuration loading.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service. It supports three-layer
// configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithAIProvider("openai", os.Getenv("OPENAI_API_KEY")),
//	    WithMaxParallel(6),
//	)
type Config struct {
	Name string `json:"name" env:"VRAG_SERVICE_NAME" default:"vrag"`

	AI         AIConfig         `json:"ai"`
	Backends   BackendConfig    `json:"backends"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Execution  ExecutionConfig  `json:"execution"`
	Budget     BudgetConfig     `json:"budget"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
	Telemetry  TelemetryConfig  `json:"telemetry"`

	Development DevelopmentConfig `json:"development"`

	logger Logger `json:"-"`
}

// AIConfig configures the LLM client used for hypothesis generation, intent
// classification escalation and re-ranking.
type AIConfig struct {
	Provider      string        `json:"provider" env:"VRAG_AI_PROVIDER" default:"openai"`
	APIKey        string        `json:"api_key" env:"VRAG_AI_API_KEY,OPENAI_API_KEY"`
	BaseURL       string        `json:"base_url" env:"VRAG_AI_BASE_URL"`
	Model         string        `json:"model" env:"VRAG_AI_MODEL" default:"gpt-4o-mini"`
	Temperature   float32       `json:"temperature" env:"VRAG_AI_TEMPERATURE" default:"0.2"`
	MaxTokens     int           `json:"max_tokens" env:"VRAG_AI_MAX_TOKENS" default:"2000"`
	Timeout       time.Duration `json:"timeout" env:"VRAG_AI_TIMEOUT" default:"30s"`
	RetryAttempts int           `json:"retry_attempts" env:"VRAG_AI_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `json:"retry_delay" env:"VRAG_AI_RETRY_DELAY" default:"100ms"`
}

// BackendConfig configures the polyglot data facade: vector, graph, relational
// and the shared Redis instance backing the progress stream and registry cache.
type BackendConfig struct {
	VectorEnabled     bool          `json:"vector_enabled" env:"VRAG_VECTOR_ENABLED" default:"true"`
	QdrantURL         string        `json:"-" env:"VRAG_QDRANT_URL" default:"localhost:6334"`
	QdrantAPIKey      string        `json:"-" env:"VRAG_QDRANT_API_KEY"`
	QdrantCollection  string        `json:"-" env:"VRAG_QDRANT_COLLECTION" default:"administrative_law_de"`

	GraphEnabled bool   `json:"graph_enabled" env:"VRAG_GRAPH_ENABLED" default:"true"`
	ArangoURL    string `json:"-" env:"VRAG_ARANGO_URL" default:"http://localhost:8529"`
	ArangoUser   string `json:"-" env:"VRAG_ARANGO_USER" default:"root"`
	ArangoPass   string `json:"-" env:"VRAG_ARANGO_PASSWORD"`
	ArangoDB     string `json:"-" env:"VRAG_ARANGO_DATABASE" default:"jurisoracle"`

	RelationalEnabled bool   `json:"relational_enabled" env:"VRAG_RELATIONAL_ENABLED" default:"true"`
	PostgresDSN       string `json:"-" env:"VRAG_POSTGRES_DSN"`

	RedisURL    string        `json:"-" env:"VRAG_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
	DialTimeout time.Duration `json:"dial_timeout" env:"VRAG_BACKEND_DIAL_TIMEOUT" default:"5s"`
}

// RetrievalConfig configures the hybrid retrieval engine.
type RetrievalConfig struct {
	FusionMethod    string  `json:"fusion_method" env:"VRAG_FUSION_METHOD" default:"rrf"`
	RRFConstant     float64 `json:"rrf_constant" env:"VRAG_RRF_CONSTANT" default:"60"`
	TopKPerBackend  int     `json:"top_k_per_backend" env:"VRAG_TOP_K_PER_BACKEND" default:"20"`
	TopKFinal       int     `json:"top_k_final" env:"VRAG_TOP_K_FINAL" default:"10"`
	RerankBatchSize int     `json:"rerank_batch_size" env:"VRAG_RERANK_BATCH_SIZE" default:"5"`
	ExpandQueries   bool    `json:"expand_queries" env:"VRAG_EXPAND_QUERIES" default:"true"`
}

// ExecutionConfig configures the process executor's concurrency bounds.
type ExecutionConfig struct {
	MaxParallel     int           `json:"max_parallel" env:"VRAG_MAX_PARALLEL" default:"5"`
	StepTimeout     time.Duration `json:"step_timeout" env:"VRAG_STEP_TIMEOUT" default:"20s"`
	ProgressBuffer  int           `json:"progress_buffer" env:"VRAG_PROGRESS_BUFFER" default:"64"`
}

// BudgetConfig configures the adaptive token budget calculator and context
// window manager.
type BudgetConfig struct {
	BaseTokens          int     `json:"base_tokens" env:"VRAG_BUDGET_BASE_TOKENS" default:"1500"`
	MaxTokens           int     `json:"max_tokens" env:"VRAG_BUDGET_MAX_TOKENS" default:"8000"`
	ModelContextWindow  int     `json:"model_context_window" env:"VRAG_MODEL_CONTEXT_WINDOW" default:"128000"`
	ReservedForResponse int     `json:"reserved_for_response" env:"VRAG_RESERVED_FOR_RESPONSE" default:"2000"`
	OverflowSafetyRatio float64 `json:"overflow_safety_ratio" env:"VRAG_OVERFLOW_SAFETY_RATIO" default:"0.9"`
}

// ResilienceConfig contains fault tolerance and resilience pattern
// configuration shared by every backend client.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"VRAG_CB_ENABLED" default:"true"`
	Threshold        int           `json:"threshold" env:"VRAG_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" env:"VRAG_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" env:"VRAG_CB_HALF_OPEN" default:"3"`
}

// RetryConfig defines retry settings with exponential backoff.
// interval = min(InitialInterval * (Multiplier ^ attempt), MaxInterval)
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" env:"VRAG_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `json:"initial_interval" env:"VRAG_RETRY_INITIAL_INTERVAL" default:"100ms"`
	MaxInterval     time.Duration `json:"max_interval" env:"VRAG_RETRY_MAX_INTERVAL" default:"1600ms"`
	Multiplier      float64       `json:"multiplier" env:"VRAG_RETRY_MULTIPLIER" default:"4.0"`
}

// LoggingConfig contains logging configuration. Supports structured (JSON)
// and human-readable (text) formats.
type LoggingConfig struct {
	Level      string `json:"level" env:"VRAG_LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"VRAG_LOG_FORMAT" default:"json"`
	Output     string `json:"output" env:"VRAG_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"time_format" env:"VRAG_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.000Z07:00"`
}

// TelemetryConfig configures OpenTelemetry traces and metrics.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" env:"VRAG_TELEMETRY_ENABLED" default:"false"`
	Endpoint       string  `json:"endpoint" env:"VRAG_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" env:"VRAG_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	TracingEnabled bool    `json:"tracing_enabled" env:"VRAG_TELEMETRY_TRACING" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" env:"VRAG_TELEMETRY_SAMPLING_RATE" default:"1.0"`
}

// DevelopmentConfig contains settings for local development and testing.
// WARNING: never enable development mode in production.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"DEV_MODE" default:"false"`
	MockAI       bool `json:"mock_ai" env:"VRAG_MOCK_AI" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"VRAG_DEBUG" default:"false"`
}

// Option is a functional option for configuring the service.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "vrag",
		AI: AIConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			Temperature:   0.2,
			MaxTokens:     2000,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    100 * time.Millisecond,
		},
		Backends: BackendConfig{
			VectorEnabled:    true,
			QdrantURL:        "localhost:6334",
			QdrantCollection: "administrative_law_de",
			GraphEnabled:     true,
			ArangoURL:        "http://localhost:8529",
			ArangoUser:       "root",
			ArangoDB:         "jurisoracle",
			RelationalEnabled: true,
			RedisURL:         "redis://localhost:6379",
			DialTimeout:      5 * time.Second,
		},
		Retrieval: RetrievalConfig{
			FusionMethod:    "rrf",
			RRFConstant:     60,
			TopKPerBackend:  20,
			TopKFinal:       10,
			RerankBatchSize: 5,
			ExpandQueries:   true,
		},
		Execution: ExecutionConfig{
			MaxParallel:    5,
			StepTimeout:    20 * time.Second,
			ProgressBuffer: 64,
		},
		Budget: BudgetConfig{
			BaseTokens:          1500,
			MaxTokens:           8000,
			ModelContextWindow:  128000,
			ReservedForResponse: 2000,
			OverflowSafetyRatio: 0.9,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 3,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     1600 * time.Millisecond,
				Multiplier:      4.0,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Telemetry: TelemetryConfig{
			TracingEnabled: true,
			SamplingRate:   1.0,
		},
	}
}

// LoadFromEnv overlays environment variables onto the current configuration
// and validates the result. Environment variables take precedence over
// defaults but are overridden by functional options passed to NewConfig.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("VRAG_SERVICE_NAME"); v != "" {
		c.Name = v
	}

	if v := os.Getenv("VRAG_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("VRAG_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("VRAG_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("VRAG_AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}

	if v := os.Getenv("VRAG_VECTOR_ENABLED"); v != "" {
		c.Backends.VectorEnabled = parseBool(v)
	}
	if v := os.Getenv("VRAG_QDRANT_URL"); v != "" {
		c.Backends.QdrantURL = v
	}
	if v := os.Getenv("VRAG_QDRANT_API_KEY"); v != "" {
		c.Backends.QdrantAPIKey = v
	}
	if v := os.Getenv("VRAG_QDRANT_COLLECTION"); v != "" {
		c.Backends.QdrantCollection = v
	}

	if v := os.Getenv("VRAG_GRAPH_ENABLED"); v != "" {
		c.Backends.GraphEnabled = parseBool(v)
	}
	if v := os.Getenv("VRAG_ARANGO_URL"); v != "" {
		c.Backends.ArangoURL = v
	}
	if v := os.Getenv("VRAG_ARANGO_USER"); v != "" {
		c.Backends.ArangoUser = v
	}
	if v := os.Getenv("VRAG_ARANGO_PASSWORD"); v != "" {
		c.Backends.ArangoPass = v
	}
	if v := os.Getenv("VRAG_ARANGO_DATABASE"); v != "" {
		c.Backends.ArangoDB = v
	}

	if v := os.Getenv("VRAG_RELATIONAL_ENABLED"); v != "" {
		c.Backends.RelationalEnabled = parseBool(v)
	}
	if v := os.Getenv("VRAG_POSTGRES_DSN"); v != "" {
		c.Backends.PostgresDSN = v
	}
	if v := os.Getenv("VRAG_REDIS_URL"); v != "" {
		c.Backends.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Backends.RedisURL = v
	}

	if v := os.Getenv("VRAG_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Execution.MaxParallel = n
		} else if c.logger != nil {
			c.logger.Warn("invalid VRAG_MAX_PARALLEL", map[string]interface{}{"value": v})
		}
	}
	if v := os.Getenv("VRAG_TOP_K_FINAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.TopKFinal = n
		}
	}

	if v := os.Getenv("VRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VRAG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("VRAG_MOCK_AI"); v != "" {
		c.Development.MockAI = parseBool(v)
	}
	if v := os.Getenv("VRAG_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}

	if v := os.Getenv("VRAG_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}

	return c.Validate()
}

// Validate checks the configuration for invalid combinations. Returns a
// FrameworkError with Kind KindValidation on failure.
func (c *Config) Validate() error {
	if c.Execution.MaxParallel < 1 {
		return NewFrameworkError("Config.Validate", KindValidation, fmt.Errorf("execution.max_parallel must be >= 1, got %d", c.Execution.MaxParallel))
	}
	if c.Retrieval.TopKFinal < 1 {
		return NewFrameworkError("Config.Validate", KindValidation, fmt.Errorf("retrieval.top_k_final must be >= 1"))
	}
	if c.Retrieval.RerankBatchSize < 1 || c.Retrieval.RerankBatchSize > 5 {
		return NewFrameworkError("Config.Validate", KindValidation, fmt.Errorf("retrieval.rerank_batch_size must be in [1,5], got %d", c.Retrieval.RerankBatchSize))
	}
	if c.Budget.BaseTokens <= 0 || c.Budget.MaxTokens < c.Budget.BaseTokens {
		return NewFrameworkError("Config.Validate", KindValidation, fmt.Errorf("budget.max_tokens must be >= budget.base_tokens"))
	}
	switch c.Retrieval.FusionMethod {
	case "rrf", "weighted_sum", "borda_count":
	default:
		return NewFrameworkError("Config.Validate", KindValidation, fmt.Errorf("unknown fusion method %q", c.Retrieval.FusionMethod))
	}
	return nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// Functional options ---------------------------------------------------

func WithAIProvider(provider, apiKey string) Option {
	return func(c *Config) error {
		c.AI.Provider = provider
		c.AI.APIKey = apiKey
		return nil
	}
}

func WithAIModel(model string) Option {
	return func(c *Config) error {
		c.AI.Model = model
		return nil
	}
}

func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Backends.RedisURL = url
		return nil
	}
}

func WithQdrantURL(url string) Option {
	return func(c *Config) error {
		c.Backends.QdrantURL = url
		return nil
	}
}

func WithArangoURL(url string) Option {
	return func(c *Config) error {
		c.Backends.ArangoURL = url
		return nil
	}
}

func WithPostgresDSN(dsn string) Option {
	return func(c *Config) error {
		c.Backends.PostgresDSN = dsn
		return nil
	}
}

func WithMaxParallel(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("max parallel must be >= 1")
		}
		c.Execution.MaxParallel = n
		return nil
	}
}

func WithFusionMethod(method string) Option {
	return func(c *Config) error {
		c.Retrieval.FusionMethod = method
		return nil
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

func WithMockAI(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockAI = enabled
		return nil
	}
}

func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// NewConfig builds a Config by layering defaults, then environment
// variables, then the supplied functional options, in that priority order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, NewFrameworkError("NewConfig", KindValidation, err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	// Re-apply functional options so they win over environment variables.
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, NewFrameworkError("NewConfig", KindValidation, err)
		}
	}

	return cfg, nil
}

// NewProductionLogger builds the default structured Logger, writing
// newline-delimited JSON to stdout (or human-readable text in development
// mode) the way every other component in this service logs.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}
	logger := &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
	trackLogger(logger)
	return logger
}

// ProductionLogger is the default Logger implementation. It emits structured
// JSON by default and falls back to a human-readable line format in
// development mode.
type ProductionLogger struct {
	level          string
	debug          bool
	serviceName    string
	format         string
	output         io.Writer
	metricsEnabled bool
}

// EnableMetrics is called by the telemetry package to start emitting a
// counter for every log event once a MetricsRegistry is available.
func (p *ProductionLogger) EnableMetrics() { p.metricsEnabled = true }

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}
func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"message":   msg,
		}
		if ctx != nil && p.metricsEnabled {
			for k, v := range getContextBaggage(ctx) {
				entry["trace."+k] = v
			}
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		var fieldStr strings.Builder
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n", timestamp, level, p.serviceName, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{"level", level, "service", p.serviceName}
	for k, v := range fields {
		switch k {
		case "operation", "status", "error_kind", "backend", "provider":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}
	if ctx != nil {
		emitMetricWithContext(ctx, "vrag.log.events", 1.0, labels...)
	} else {
		emitMetric("vrag.log.events", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
