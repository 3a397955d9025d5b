package server

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig builds the server configuration from defaults, an optional YAML
// config file, and SNUTZ_-prefixed environment variables (in increasing
// precedence). An empty path means no config file is required.
func LoadConfig(path string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.path", "snutz.db")
	v.SetDefault("modules.fleet.offline_after", "0s")
	v.SetDefault("modules.fleet.auto_ping_schedule", false)
	v.SetDefault("modules.fleet.auto_ping_target", "8.8.8.8")
	v.SetDefault("modules.fleet.auto_ping_interval_seconds", 300)

	v.SetEnvPrefix("SNUTZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	return v, nil
}
