package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultRequestTimeout = 30 * time.Second

// Config holds the application configuration.
type Config struct {
	OpenRouterAPIKey string
	GroqAPIKey       string
	GeminiAPIKey     string
	AnthropicAPIKey  string

	OpenRouterModel string
	GroqModel       string
	GeminiModel     string
	AnthropicModel  string

	// RequestTimeout bounds every single provider call.
	RequestTimeout time.Duration

	Routing     *RoutingConfig
	ConfigDir   string
	DataDir     string
	DiseaseFile string
}

// FileConfig represents the structure of ~/.dermapipe/config.yaml.
type FileConfig struct {
	APIKeys APIKeysConfig `yaml:"api_keys"`
	Models  ModelsConfig  `yaml:"models"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	OpenRouter string `yaml:"openrouter"`
	Groq       string `yaml:"groq"`
	Gemini     string `yaml:"gemini"`
	Anthropic  string `yaml:"anthropic"`
}

// ModelsConfig holds per-provider model overrides from file.
type ModelsConfig struct {
	OpenRouter string `yaml:"openrouter"`
	Groq       string `yaml:"groq"`
	Gemini     string `yaml:"gemini"`
	Anthropic  string `yaml:"anthropic"`
}

// Load reads configuration from the config directory and environment.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		OpenRouterAPIKey: getEnvOrDefault("OPENROUTER_API_KEY", fileConfig.APIKeys.OpenRouter),
		GroqAPIKey:       getEnvOrDefault("GROQ_API_KEY", fileConfig.APIKeys.Groq),
		GeminiAPIKey:     getEnvOrDefault("GEMINI_API_KEY", fileConfig.APIKeys.Gemini),
		AnthropicAPIKey:  getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenRouterModel:  fileConfig.Models.OpenRouter,
		GroqModel:        fileConfig.Models.Groq,
		GeminiModel:      fileConfig.Models.Gemini,
		AnthropicModel:   fileConfig.Models.Anthropic,
		RequestTimeout:   requestTimeout(),
		ConfigDir:        configDir,
		DataDir:          getEnvOrDefault("DERMAPIPE_DATA_DIR", filepath.Join(configDir, "data")),
	}

	routingPath := getEnvOrDefault("DERMAPIPE_ROUTING_FILE", filepath.Join(configDir, "routing.json"))
	if _, err := os.Stat(routingPath); err == nil {
		routing, err := LoadRoutingConfig(routingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load routing config: %w", err)
		}
		cfg.Routing = routing
	} else {
		cfg.Routing = DefaultRoutingConfig()
	}

	cfg.DiseaseFile = getEnvOrDefault("DERMAPIPE_DISEASE_FILE", filepath.Join(configDir, "diseases.json"))

	return cfg, nil
}

// LoadWithRoutingFile loads configuration using an explicit routing file
// instead of the discovered one.
func LoadWithRoutingFile(routingPath string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	routing, err := LoadRoutingConfig(routingPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing config: %w", err)
	}
	cfg.Routing = routing
	return cfg, nil
}

// HasProvider returns true if the named provider can be constructed from
// this configuration.
func (c *Config) HasProvider(name string) bool {
	switch name {
	case "internal", "mock":
		return true
	case "openrouter":
		return c.OpenRouterAPIKey != ""
	case "groq":
		return c.GroqAPIKey != ""
	case "gemini":
		return c.GeminiAPIKey != ""
	case "claude":
		return c.AnthropicAPIKey != ""
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, cfg)
	return cfg
}

func requestTimeout() time.Duration {
	raw := os.Getenv("AI_REQUEST_TIMEOUT_SECONDS")
	if raw == "" {
		return defaultRequestTimeout
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(secs) * time.Second
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".dermapipe")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
