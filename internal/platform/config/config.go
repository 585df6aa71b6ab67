package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "GATEHOUSE_"

	MinSigningKeyBytes = 32
	MinBcryptCost      = 12
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Log          LogConfig          `koanf:"log"`
	Auth         AuthConfig         `koanf:"auth"`
	Subscription SubscriptionConfig `koanf:"subscription"`
	RateLimit    RateLimitConfig    `koanf:"ratelimit"`
	Audit        AuditConfig        `koanf:"audit"`
	Metrics      MetricsConfig      `koanf:"metrics"`
}

type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"corsorigins"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	JWT        JWTConfig `koanf:"jwt"`
	BcryptCost int       `koanf:"bcryptcost"`
	// SuperAdminIDs are user ids granted the SuperAdmin role at login.
	SuperAdminIDs []int64 `koanf:"superadminids"`
}

type JWTConfig struct {
	SigningKey  string `koanf:"signingkey"`
	Issuer      string `koanf:"issuer"`
	Audience    string `koanf:"audience"`
	ExpiryHours int    `koanf:"expiryhours"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type SubscriptionConfig struct {
	TrialDays int `koanf:"trialdays"`
	// PublicPaths replaces the gate's default allow-list when set.
	PublicPaths []string `koanf:"publicpaths"`
}

type RateLimitConfig struct {
	Enabled  bool        `koanf:"enabled"`
	Backend  string      `koanf:"backend"`
	Redis    RedisConfig `koanf:"redis"`
	Auth     PolicyLimit `koanf:"auth"`
	Register PolicyLimit `koanf:"register"`
	Critical PolicyLimit `koanf:"critical"`
	API      PolicyLimit `koanf:"api"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type PolicyLimit struct {
	Limit         int `koanf:"limit"`
	WindowSeconds int `koanf:"windowseconds"`
}

func (p PolicyLimit) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

type AuditConfig struct {
	BufferSize      int `koanf:"buffersize"`
	BatchSize       int `koanf:"batchsize"`
	FlushIntervalMS int `koanf:"flushintervalms"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                      8080,
		"server.host":                      "0.0.0.0",
		"database.maxconns":                25,
		"database.migrationspath":          "migrations",
		"log.level":                        "info",
		"log.format":                       "json",
		"auth.jwt.issuer":                  "gatehouse",
		"auth.jwt.audience":                "gatehouse-api",
		"auth.jwt.expiryhours":             24,
		"auth.bcryptcost":                  MinBcryptCost,
		"subscription.trialdays":           7,
		"ratelimit.enabled":                true,
		"ratelimit.backend":                "memory",
		"ratelimit.redis.addr":             "localhost:6379",
		"ratelimit.auth.limit":             5,
		"ratelimit.auth.windowseconds":     60,
		"ratelimit.register.limit":         3,
		"ratelimit.register.windowseconds": 600,
		"ratelimit.critical.limit":         10,
		"ratelimit.critical.windowseconds": 60,
		"ratelimit.api.limit":              100,
		"ratelimit.api.windowseconds":      60,
		"audit.buffersize":                 4096,
		"audit.batchsize":                  100,
		"audit.flushintervalms":            500,
		"metrics.enabled":                  true,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// GATEHOUSE_AUTH_JWT_SIGNINGKEY -> auth.jwt.signingkey
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWT.SigningKey) < MinSigningKeyBytes {
		errs = append(errs, fmt.Errorf("auth.jwt.signingkey must be at least %d bytes", MinSigningKeyBytes))
	}
	if c.Auth.BcryptCost < MinBcryptCost {
		errs = append(errs, fmt.Errorf("auth.bcryptcost must be at least %d", MinBcryptCost))
	}
	if c.Auth.JWT.ExpiryHours <= 0 {
		errs = append(errs, errors.New("auth.jwt.expiryhours must be positive"))
	}
	if c.Auth.JWT.Issuer == "" || c.Auth.JWT.Audience == "" {
		errs = append(errs, errors.New("auth.jwt.issuer and auth.jwt.audience are required"))
	}
	if c.Subscription.TrialDays <= 0 {
		errs = append(errs, errors.New("subscription.trialdays must be positive"))
	}
	for _, id := range c.Auth.SuperAdminIDs {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("auth.superadminids: %d is not a user id", id))
		}
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend %q must be memory or redis", c.RateLimit.Backend))
	}
	return errors.Join(errs...)
}
