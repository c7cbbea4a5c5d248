/*
config.go - Application configuration

PURPOSE:
  Loads server, storage, logging, auth, sweeper and rule settings.
  Priority: environment > config file > defaults.

ENVIRONMENT:
  Every key maps to SHIFT_<KEY> with dots replaced by underscores:
    SHIFT_SERVER_PORT=9090
    SHIFT_AUTH_JWT_SECRET=...
    SHIFT_RULES_PROXIMITY_METERS=100

SEE ALSO:
  - cmd/server/main.go: loads .env, then calls Load
  - shift/machine.go: Rules consumed by the engine
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/angau/shift-engine/shift"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sweeper SweeperConfig `mapstructure:"sweeper"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Rules   RulesConfig   `mapstructure:"rules"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DBConfig points at the SQLite file. ":memory:" keeps everything in process.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SweeperConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	ExpireInterval       time.Duration `mapstructure:"expire_interval"`
	AutoClockOutInterval time.Duration `mapstructure:"auto_clock_out_interval"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
}

// RedisConfig enables the shared sweep lock when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RulesConfig struct {
	ProximityMeters    float64       `mapstructure:"proximity_meters"`
	ClockInLead        time.Duration `mapstructure:"clock_in_lead"`
	ClockOutDelay      time.Duration `mapstructure:"clock_out_delay"`
	ExpireAfter        time.Duration `mapstructure:"expire_after"`
	AutoClockOutAfter  time.Duration `mapstructure:"auto_clock_out_after"`
	OvertimeWindow     time.Duration `mapstructure:"overtime_window"`
	CancellationWindow time.Duration `mapstructure:"cancellation_window"`
}

// Shift converts the configured thresholds into engine rules.
func (r RulesConfig) Shift() shift.Rules {
	return shift.Rules{
		ProximityMeters:    r.ProximityMeters,
		ClockInLead:        r.ClockInLead,
		ClockOutDelay:      r.ClockOutDelay,
		ExpireAfter:        r.ExpireAfter,
		AutoClockOutAfter:  r.AutoClockOutAfter,
		OvertimeWindow:     r.OvertimeWindow,
		CancellationWindow: r.CancellationWindow,
	}
}

// Load reads configuration from path (or ./config.yaml when empty) and the
// environment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	rules := shift.DefaultRules()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173", "http://localhost:8080"})

	v.SetDefault("db.path", "shifts.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.expire_interval", shift.DefaultExpireInterval)
	v.SetDefault("sweeper.auto_clock_out_interval", shift.DefaultAutoClockOutInterval)
	v.SetDefault("sweeper.lock_ttl", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rules.proximity_meters", rules.ProximityMeters)
	v.SetDefault("rules.clock_in_lead", rules.ClockInLead)
	v.SetDefault("rules.clock_out_delay", rules.ClockOutDelay)
	v.SetDefault("rules.expire_after", rules.ExpireAfter)
	v.SetDefault("rules.auto_clock_out_after", rules.AutoClockOutAfter)
	v.SetDefault("rules.overtime_window", rules.OvertimeWindow)
	v.SetDefault("rules.cancellation_window", rules.CancellationWindow)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("invalid config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("invalid config: db.path is required")
	}
	if c.Sweeper.Enabled && (c.Sweeper.ExpireInterval <= 0 || c.Sweeper.AutoClockOutInterval <= 0) {
		return fmt.Errorf("invalid config: sweeper intervals must be positive")
	}
	if c.Rules.ProximityMeters <= 0 {
		return fmt.Errorf("invalid config: rules.proximity_meters must be positive")
	}
	return nil
}
