package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8090"`
		CORSEnabled     bool          `yaml:"cors_enabled" default:"true"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	WS struct {
		BaseURL              string        `yaml:"base_url" validate:"required"`
		ReconnectDelay       time.Duration `yaml:"reconnect_delay" default:"1s"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"5" validate:"gte=0"`
		HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" default:"30s"`
		Throttle             time.Duration `yaml:"throttle" default:"100ms"`
	} `yaml:"ws"`

	Tiers struct {
		Premium int64 `yaml:"premium" default:"1000" validate:"gt=0"`
		Holder  int64 `yaml:"holder" default:"10000" validate:"gtefield=Premium"`
		Whale   int64 `yaml:"whale" default:"100000" validate:"gtefield=Holder"`
	} `yaml:"tiers"`

	Preferences struct {
		Storage           string  `yaml:"storage" default:"file" validate:"oneof=memory file redis none"`
		Path              string  `yaml:"path" default:"data/preferences"`
		MinimumConfidence float64 `yaml:"minimum_confidence" default:"0.7" validate:"gte=0,lte=1"`
	} `yaml:"preferences"`

	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"4ex"`
	} `yaml:"redis"`

	Balance struct {
		Endpoints    []string      `yaml:"endpoints"`
		TokenAddress string        `yaml:"token_address"`
		Decimals     int           `yaml:"decimals" default:"18" validate:"gte=0,lte=36"`
		Timeout      time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"balance"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"forex.signals.delivered"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		MaxAttempts  int      `yaml:"max_attempts" default:"3"`
		Async        bool     `yaml:"async" default:"true"`
	} `yaml:"kafka"`

	// Wallet provider names the UI may offer for connect prompts.
	Wallets []string `yaml:"wallets"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("WS_BASE_URL"); v != "" {
		c.WS.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BALANCE_RPC_ENDPOINTS"); v != "" {
		c.Balance.Endpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config fields: %w", err)
	}
	if !strings.HasPrefix(c.WS.BaseURL, "ws://") && !strings.HasPrefix(c.WS.BaseURL, "wss://") {
		return fmt.Errorf("ws.base_url must be a ws:// or wss:// URL, got '%s'", c.WS.BaseURL)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka.enabled is true")
	}
	if c.Preferences.Storage == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when preferences.storage is 'redis'")
	}
	return nil
}
