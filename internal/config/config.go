package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskline.yml.
type Config struct {
	AI     AIConfig     `yaml:"ai"`
	Auth   AuthConfig   `yaml:"auth"`
	Server ServerConfig `yaml:"server"`
	Chat   ChatConfig   `yaml:"chat"`
}

// AIConfig controls the interpreter and confidence routing.
type AIConfig struct {
	Provider            string  `yaml:"provider"` // openai or mock
	Model               string  `yaml:"model"`
	APIKeyEnv           string  `yaml:"api_key_env"`
	BaseURL             string  `yaml:"base_url"`
	TimeoutSeconds      float64 `yaml:"timeout_seconds"`
	HighConfidence      float64 `yaml:"high_confidence"`
	LowConfidence       float64 `yaml:"low_confidence"`
	ContextMessageLimit int     `yaml:"context_message_limit"`
}

type AuthConfig struct {
	JWTSecretEnv      string `yaml:"jwt_secret_env"`
	TokenTTLMinutes   int    `yaml:"token_ttl_minutes"`
	ConfirmTTLSeconds int    `yaml:"confirm_ttl_seconds"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type ChatConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
}

// Timeout returns the interpreter deadline as a duration.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds * float64(time.Second))
}

// ConfirmTTL returns how long a pending command stays confirmable.
func (a AuthConfig) ConfirmTTL() time.Duration {
	return time.Duration(a.ConfirmTTLSeconds) * time.Second
}

// Validate ensures the config meets required structure. Threshold
// ordering is a startup invariant, not a runtime failure.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("config.ai.provider must be openai or mock, got %q", c.AI.Provider)
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.ai.timeout_seconds must be positive")
	}
	if c.AI.HighConfidence < 0 || c.AI.HighConfidence > 1 {
		return fmt.Errorf("config.ai.high_confidence must be in [0,1]")
	}
	if c.AI.LowConfidence < 0 || c.AI.LowConfidence > 1 {
		return fmt.Errorf("config.ai.low_confidence must be in [0,1]")
	}
	if c.AI.LowConfidence > c.AI.HighConfidence {
		return fmt.Errorf("config.ai.low_confidence %.2f exceeds high_confidence %.2f",
			c.AI.LowConfidence, c.AI.HighConfidence)
	}
	if c.AI.ContextMessageLimit <= 0 {
		return fmt.Errorf("config.ai.context_message_limit must be positive")
	}
	if c.AI.Provider == "openai" && c.AI.Model == "" {
		return fmt.Errorf("config.ai.model is required for the openai provider")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must be positive")
	}
	if c.Auth.ConfirmTTLSeconds <= 0 {
		return fmt.Errorf("config.auth.confirm_ttl_seconds must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("config.chat.max_message_length must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `ai:
  provider: mock
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
  base_url: ""
  timeout_seconds: 5
  high_confidence: 0.8
  low_confidence: 0.5
  context_message_limit: 10

auth:
  jwt_secret_env: TASKLINE_JWT_SECRET
  token_ttl_minutes: 60
  confirm_ttl_seconds: 300

server:
  addr: 127.0.0.1:8484
  base_path: /v1

chat:
  max_message_length: 2000
`
