package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/brokerhub/internal/core"
)

type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Redis      RedisConfig             `mapstructure:"redis"`
	Postgres   PostgresConfig          `mapstructure:"postgres"`
	Brokers    map[string]BrokerConfig `mapstructure:"brokers"`
	Encryption EncryptionConfig        `mapstructure:"encryption"`
	Metrics    MetricsConfig           `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Mode   string `mapstructure:"mode"`
	APIKey string `mapstructure:"api_key"`
	// BrokerTimeout bounds each vendor call during aggregation fan-out.
	BrokerTimeout time.Duration `mapstructure:"broker_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// BrokerConfig holds per-vendor OAuth application credentials. Sandbox
// routes calls at the vendor's paper/sandbox environment.
type BrokerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientKey    string `mapstructure:"client_key"`
	ClientSecret string `mapstructure:"client_secret"`
	Sandbox      bool   `mapstructure:"sandbox"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// EncryptionConfig holds the key used to encrypt vendor credentials at rest.
type EncryptionConfig struct {
	// Key is the hex-encoded 32-byte AES key.
	Key string `mapstructure:"key"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("BROKERHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			Mode:          "release",
			BrokerTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.BrokerTimeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("broker_timeout cannot be negative, got %s", c.Server.BrokerTimeout))
	}

	for name, b := range c.Brokers {
		if !b.Enabled {
			continue
		}
		if b.ClientKey == "" || b.ClientSecret == "" {
			return core.WrapError(core.ErrCredentialsMissing,
				fmt.Errorf("broker %s enabled without client_key/client_secret", name))
		}
	}

	return nil
}
