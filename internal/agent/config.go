package agent

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the SNUTZ agent configuration.
type Config struct {
	ServerURL         string `mapstructure:"server_url"`
	DeviceID          string `mapstructure:"device_id"`
	DeviceName        string `mapstructure:"device_name"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval_seconds"`
	PollInterval      int    `mapstructure:"poll_interval_seconds"`
	RegisterRetries   int    `mapstructure:"register_retries"`
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:         "http://localhost:8080",
		DeviceName:        "snutz-agent",
		HeartbeatInterval: 30,
		PollInterval:      10,
		RegisterRetries:   5,
	}
}

// LoadConfig builds the agent configuration from defaults, an optional YAML
// config file, and SNUTZ_AGENT_-prefixed environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server_url", defaults.ServerURL)
	v.SetDefault("device_name", defaults.DeviceName)
	v.SetDefault("heartbeat_interval_seconds", defaults.HeartbeatInterval)
	v.SetDefault("poll_interval_seconds", defaults.PollInterval)
	v.SetDefault("register_retries", defaults.RegisterRetries)

	v.SetEnvPrefix("SNUTZ_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks fields without workable defaults.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval_seconds must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}
	return nil
}
