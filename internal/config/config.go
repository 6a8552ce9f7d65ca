package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the process configuration, read from the environment once at
// startup. Required fields abort boot when missing; everything optional
// degrades a feature instead.
type Config struct {
	// HTTP surface.
	Port        string
	WebhookPath string

	// Messaging platform credentials.
	ChannelToken  string
	ChannelSecret string

	// Blob storage.
	Bucket     string
	AuthBucket string

	// Review access gate. Empty means the gate is open.
	GlobalAuthToken string

	// Remote engine companion service. When empty, engine calls run the
	// local subprocess configured below.
	EngineEndpoint  string
	CallbackBaseURL string

	// Engine subprocess mode.
	EngineBin    string
	EngineModel  string
	EngineConfig string

	// LLM commentary provider.
	LLMEndpoint string
	LLMAPIKey   string
	LLMModel    string

	// Optional infrastructure.
	RedisAddr     string
	GCPProject    string
	TasksLocation string
	TasksQueue    string
	EventsTopic   string
	ChatLocks     bool

	Tuning Tuning
}

// Load reads the environment, applies defaults, and validates required
// fields. All missing required variables are reported in one error.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            envOr("PORT", "8080"),
		WebhookPath:     envOr("WEBHOOK_PATH", "/webhook"),
		ChannelToken:    os.Getenv("CHANNEL_TOKEN"),
		ChannelSecret:   os.Getenv("CHANNEL_SECRET"),
		Bucket:          os.Getenv("BUCKET"),
		AuthBucket:      os.Getenv("AUTH_BUCKET"),
		GlobalAuthToken: os.Getenv("GLOBAL_AUTH_TOKEN"),
		EngineEndpoint:  os.Getenv("ENGINE_ENDPOINT"),
		CallbackBaseURL: os.Getenv("CALLBACK_BASE_URL"),
		EngineBin:       os.Getenv("ENGINE_BIN"),
		EngineModel:     os.Getenv("ENGINE_MODEL"),
		EngineConfig:    os.Getenv("ENGINE_CONFIG"),
		LLMEndpoint:     os.Getenv("LLM_ENDPOINT"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		LLMModel:        envOr("LLM_MODEL", "gpt-4o-mini"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		GCPProject:      os.Getenv("GCP_PROJECT"),
		TasksLocation:   os.Getenv("TASKS_LOCATION"),
		TasksQueue:      os.Getenv("TASKS_QUEUE"),
		EventsTopic:     os.Getenv("EVENTS_TOPIC"),
	}

	if v := os.Getenv("CHAT_LOCKS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_LOCKS value %q: %w", v, err)
		}
		cfg.ChatLocks = b
	}

	var missing []string
	if cfg.ChannelToken == "" {
		missing = append(missing, "CHANNEL_TOKEN")
	}
	if cfg.Bucket == "" {
		missing = append(missing, "BUCKET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.AuthBucket == "" {
		cfg.AuthBucket = cfg.Bucket
	}

	cfg.Tuning = DefaultTuning()
	if path := os.Getenv("TENGEN_TUNING"); path != "" {
		if err := cfg.Tuning.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load tuning overlay %s: %w", path, err)
		}
	}

	return cfg, nil
}

// CloudTasksEnabled reports whether the Cloud Tasks dispatcher can be built.
func (c *Config) CloudTasksEnabled() bool {
	return c.GCPProject != "" && c.TasksLocation != "" && c.TasksQueue != ""
}

// RemoteEngineEnabled reports whether review/genmove jobs go to the
// companion service instead of a local subprocess.
func (c *Config) RemoteEngineEnabled() bool {
	return c.EngineEndpoint != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
