package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Circles   CirclesConfig   `mapstructure:"circles" validate:"required"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat              string `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// Driver "memory" keeps all state in process and ignores URL.
type DatabaseConfig struct {
	Driver                 string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL                    string `mapstructure:"url" validate:"required_if=Driver postgres"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=1"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gtfield=TokenLifetimeMinutes"`
	BcryptCost                  int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// CirclesConfig tunes the lending circle registry.
type CirclesConfig struct {
	// MinMembersToActivate is the readiness threshold for Open -> Active.
	MinMembersToActivate int `mapstructure:"min_members_to_activate" validate:"gte=1"`
	LockTimeoutMillis    int `mapstructure:"lock_timeout_ms" validate:"gt=0"`
}

// LockTimeout returns the per-circle and per-goal lock acquisition bound.
func (c CirclesConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMillis) * time.Millisecond
}

// BroadcastConfig controls observer queues for circle events.
type BroadcastConfig struct {
	ObserverBuffer      int `mapstructure:"observer_buffer" validate:"gt=0"`
	WriteTimeoutMillis  int `mapstructure:"write_timeout_ms" validate:"gt=0"`
	PingIntervalSeconds int `mapstructure:"ping_interval_seconds" validate:"gt=0"`
}

// RedisConfig configures the optional score cache. An empty Addr disables it.
type RedisConfig struct {
	Addr            string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db" validate:"gte=0"`
	ScoreTTLSeconds int    `mapstructure:"score_ttl_seconds" validate:"gte=0"`
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AMQPConfig configures the optional event sink. An empty URL disables it.
type AMQPConfig struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required_with=URL"`
}

// Enabled reports whether an AMQP broker was configured.
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}
