package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CIRCLES_SERVER_PORT.
const EnvPrefix = "CIRCLES"

// defaults lists every configuration key. Registering each key lets viper
// resolve it from the environment during Unmarshal.
var defaults = map[string]any{
	"server.port":                         8080,
	"server.log_level":                    "info",
	"server.log_format":                   "json",
	"server.shutdown_timeout_seconds":     10,
	"database.driver":                     "postgres",
	"database.url":                        "",
	"database.max_open_conns":             10,
	"database.max_idle_conns":             5,
	"database.conn_max_lifetime_minutes":  5,
	"database.auto_migrate":               true,
	"auth.jwt_secret":                     "",
	"auth.token_lifetime_minutes":         60,
	"auth.refresh_token_lifetime_minutes": 10080,
	"auth.bcrypt_cost":                    10,
	"circles.min_members_to_activate":     2,
	"circles.lock_timeout_ms":             5000,
	"broadcast.observer_buffer":           64,
	"broadcast.write_timeout_ms":          2000,
	"broadcast.ping_interval_seconds":     30,
	"redis.addr":                          "",
	"redis.password":                      "",
	"redis.db":                            0,
	"redis.score_ttl_seconds":             300,
	"amqp.url":                            "",
	"amqp.exchange":                       "circles.events",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	return load(viper.New(), ".")
}

// LoadFromPath behaves like Load but reads config.yaml from the given directory.
func LoadFromPath(dir string) (*Config, error) {
	return load(viper.New(), dir)
}

func load(v *viper.Viper, dir string) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
