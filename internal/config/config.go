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

// Config aggregates every configuration section of the service.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Memory MemoryConfig
	Data   DataConfig
	Replay ReplayConfig
}

// Load reads the full configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	replay, err := loadReplayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Memory: MemoryConfig{Path: getEnvOrDefault("MEMORY_PATH", "data/memory")},
		Data:   DataConfig{Path: getEnvOrDefault("DATA_PATH", "data/edgesim.db")},
		Replay: replay,
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
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// MemoryConfig locates the on-disk vector memory database.
type MemoryConfig struct {
	Path string
}

// DataConfig locates the sqlite database holding session roles and jobs.
type DataConfig struct {
	Path string
}

// ReplayConfig bounds the inline polling window of the replay endpoint.
type ReplayConfig struct {
	PollAttempts int
	PollInterval time.Duration
}

func loadReplayConfig() (ReplayConfig, error) {
	attempts := 30
	if override, err := parseOptionalIntEnv("REPLAY_POLL_ATTEMPTS"); err != nil {
		return ReplayConfig{}, err
	} else if override != nil {
		if *override < 1 {
			attempts = 1
		} else {
			attempts = *override
		}
	}

	interval := time.Second
	if override, err := parseOptionalIntEnv("REPLAY_POLL_INTERVAL_MS"); err != nil {
		return ReplayConfig{}, err
	} else if override != nil && *override > 0 {
		interval = time.Duration(*override) * time.Millisecond
	}

	return ReplayConfig{PollAttempts: attempts, PollInterval: interval}, nil
}

// AIConfig describes the inference and embedding backend.
type AIConfig struct {
	// Workers-AI-style REST backend.
	AccountID      string
	APIToken       string
	BaseURL        string
	Model          string
	EmbeddingModel string

	// Ark backend via eino.
	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string
}

// WorkersEnabled reports whether the REST inference backend is configured.
func (c AIConfig) WorkersEnabled() bool {
	return c.AccountID != "" && c.APIToken != ""
}

// ArkEnabled reports whether the Ark backend is configured.
func (c AIConfig) ArkEnabled() bool {
	return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
}

// NewArkChatModel builds an eino chat model from the Ark section.
func (c AIConfig) NewArkChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.ArkBaseURL,
		Region:    c.ArkRegion,
		APIKey:    c.ArkAPIKey,
		AccessKey: c.ArkAccessKey,
		SecretKey: c.ArkSecretKey,
		Model:     c.ArkModel,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	return AIConfig{
		AccountID:      strings.TrimSpace(os.Getenv("AI_ACCOUNT_ID")),
		APIToken:       strings.TrimSpace(os.Getenv("AI_API_TOKEN")),
		BaseURL:        getEnvOrDefault("AI_BASE_URL", "https://api.cloudflare.com/client/v4"),
		Model:          getEnvOrDefault("AI_MODEL", "@cf/meta/llama-3.3-70b-instruct-fp8-fast"),
		EmbeddingModel: getEnvOrDefault("AI_EMBEDDING_MODEL", "@cf/baai/bge-base-en-v1.5"),
		ArkAPIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
