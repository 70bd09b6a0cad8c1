package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Supported text-generation providers.
const (
	ProviderArk       = "ark"
	ProviderAnthropic = "anthropic"
)

// Config aggregates the configuration of the whole service.
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Anthropic  AnthropicConfig
	Simulation SimulationConfig
	Database   DatabaseConfig
	Telemetry  TelemetryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	anthropic, err := loadAnthropicConfig()
	if err != nil {
		return nil, err
	}

	sim, err := loadSimulationConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Anthropic:  anthropic,
		Simulation: sim,
		Database:   loadDatabaseConfig(),
		Telemetry:  telemetry,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig selects the generation provider and carries the Ark settings.
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required Ark credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))
	switch provider {
	case ProviderArk, ProviderAnthropic:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q: want %q or %q", provider, ProviderArk, ProviderAnthropic)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:    provider,
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// AnthropicConfig describes the Anthropic Messages API settings.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Enabled reports whether the Anthropic credentials are present.
func (c AnthropicConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadAnthropicConfig() (AnthropicConfig, error) {
	maxTokens := 1024
	if override, err := parseOptionalIntEnv("ANTHROPIC_MAX_TOKENS"); err != nil {
		return AnthropicConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	return AnthropicConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		Model:     getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		BaseURL:   getEnvOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		MaxTokens: maxTokens,
	}, nil
}

// SimulationConfig carries the turn-engine knobs.
type SimulationConfig struct {
	SmartRouting bool
	HistoryLimit int
	MaxAutoTurns int
	SessionTTL   time.Duration
	PromptsDir   string
}

func loadSimulationConfig() (SimulationConfig, error) {
	smart, err := parseBoolEnv("SMART_ROUTING", false)
	if err != nil {
		return SimulationConfig{}, err
	}

	historyLimit := 30
	if override, err := parseOptionalIntEnv("SIM_HISTORY_LIMIT"); err != nil {
		return SimulationConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	maxAutoTurns := 12
	if override, err := parseOptionalIntEnv("SIM_MAX_AUTO_TURNS"); err != nil {
		return SimulationConfig{}, err
	} else if override != nil {
		if *override < 1 {
			maxAutoTurns = 1
		} else {
			maxAutoTurns = *override
		}
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 0)
	if err != nil {
		return SimulationConfig{}, err
	}

	return SimulationConfig{
		SmartRouting: smart,
		HistoryLimit: historyLimit,
		MaxAutoTurns: maxAutoTurns,
		SessionTTL:   ttl,
		PromptsDir:   strings.TrimSpace(os.Getenv("PROMPTS_DIR")),
	}, nil
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path: getEnvOrDefault("DATABASE_PATH", "data/konfliktsim.db"),
	}
}

// TelemetryConfig describes logging and tracing output.
type TelemetryConfig struct {
	LogDir  string
	Enabled bool
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("TELEMETRY_ENABLED", true)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		LogDir:  getEnvOrDefault("LOG_DIR", "logs"),
		Enabled: enabled,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
