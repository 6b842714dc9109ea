package noteapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Silent-Watcher/note-app-api/abuse"
	"github.com/Silent-Watcher/note-app-api/executor"
	"github.com/Silent-Watcher/note-app-api/jwt"
	"github.com/Silent-Watcher/note-app-api/session"
)

// Config is the full configuration tree of the session core. Zero values
// are filled in by [New] from defaultConfig; only the JWT secrets have no
// usable default.
type Config struct {
	JWT     jwt.Config
	Session SessionConfig
	Abuse   AbuseConfig
	Breaker BreakerConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig governs the rotation engine.
type SessionConfig struct {
	// SlidingLifetime is how long each issued refresh token stays usable.
	// Defaults to JWT.RefreshTTL so record expiry and signature expiry
	// agree.
	SlidingLifetime time.Duration
	// MaxSessionAge is the absolute ceiling measured from the first token
	// of the lineage. Rotation cannot extend a session past it.
	MaxSessionAge time.Duration
	// Collection is the Mongo collection holding rotation records.
	Collection string
}

/*
====================================
ABUSE CONFIG
====================================
*/

// AbuseConfig holds one policy per failure domain.
type AbuseConfig struct {
	Login   abuse.Policy
	Captcha abuse.Policy
}

/*
====================================
BREAKER CONFIG
====================================
*/

// BreakerConfig holds one breaker configuration per protected dependency.
// Name, Logger, and OnStateChange are owned by [New] and overwritten.
type BreakerConfig struct {
	Store executor.Config
	Cache executor.Config
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: jwt.Config{
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			Issuer:     "note-app-api",
		},
		Session: SessionConfig{
			MaxSessionAge: 7 * 24 * time.Hour,
			Collection:    session.DefaultCollection,
		},
		Abuse: AbuseConfig{
			Login:   abuse.LoginPolicy(),
			Captcha: abuse.CaptchaPolicy(),
		},
		Breaker: BreakerConfig{
			Store: executor.Config{Timeout: 2 * time.Second},
			Cache: executor.Config{Timeout: 3 * time.Second},
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func (c *Config) applyDefaults() {
	def := defaultConfig()

	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if c.JWT.RefreshTTL <= 0 {
		c.JWT.RefreshTTL = def.JWT.RefreshTTL
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = def.JWT.Issuer
	}
	if c.Session.SlidingLifetime <= 0 {
		c.Session.SlidingLifetime = c.JWT.RefreshTTL
	}
	if c.Session.MaxSessionAge <= 0 {
		c.Session.MaxSessionAge = def.Session.MaxSessionAge
	}
	if c.Session.Collection == "" {
		c.Session.Collection = def.Session.Collection
	}
	if c.Abuse.Login.FailurePrefix == "" {
		c.Abuse.Login = def.Abuse.Login
	}
	if c.Abuse.Captcha.FailurePrefix == "" {
		c.Abuse.Captcha = def.Abuse.Captcha
	}
	if c.Breaker.Store.Timeout <= 0 {
		c.Breaker.Store.Timeout = def.Breaker.Store.Timeout
	}
	if c.Breaker.Cache.Timeout <= 0 {
		c.Breaker.Cache.Timeout = def.Breaker.Cache.Timeout
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
}

// Validate rejects configurations that cannot produce a working core.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) == 0 {
		return errors.New("config: JWT.AccessSecret is required")
	}
	if len(c.JWT.RefreshSecret) == 0 {
		return errors.New("config: JWT.RefreshSecret is required")
	}
	if c.Session.SlidingLifetime > c.Session.MaxSessionAge {
		return fmt.Errorf("config: SlidingLifetime %v exceeds MaxSessionAge %v",
			c.Session.SlidingLifetime, c.Session.MaxSessionAge)
	}
	if c.Abuse.Login.Threshold <= 0 || c.Abuse.Captcha.Threshold <= 0 {
		return errors.New("config: abuse thresholds must be positive")
	}
	return nil
}

type envSpec struct {
	AccessTokenSecret  string        `envconfig:"ACCESS_TOKEN_SECRET" required:"true"`
	RefreshTokenSecret string        `envconfig:"REFRESH_TOKEN_SECRET" required:"true"`
	AccessTokenTTL     time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"5m"`
	RefreshTokenTTL    time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"24h"`
	MaxSessionDays     int           `envconfig:"MAX_SESSION_DAYS" default:"7"`
	TokenCollection    string        `envconfig:"REFRESH_TOKEN_COLLECTION" default:""`
	AuditEnabled       bool          `envconfig:"AUDIT_ENABLED" default:"false"`
	MetricsEnabled     bool          `envconfig:"METRICS_ENABLED" default:"true"`
}

// ConfigFromEnv builds a Config from the environment. Only the two token
// secrets are mandatory; everything else falls back to defaults.
func ConfigFromEnv() (Config, error) {
	var spec envSpec
	if err := envconfig.Process("", &spec); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte(spec.AccessTokenSecret)
	cfg.JWT.RefreshSecret = []byte(spec.RefreshTokenSecret)
	cfg.JWT.AccessTTL = spec.AccessTokenTTL
	cfg.JWT.RefreshTTL = spec.RefreshTokenTTL
	cfg.Session.SlidingLifetime = spec.RefreshTokenTTL
	cfg.Session.MaxSessionAge = time.Duration(spec.MaxSessionDays) * 24 * time.Hour
	if spec.TokenCollection != "" {
		cfg.Session.Collection = spec.TokenCollection
	}
	cfg.Audit.Enabled = spec.AuditEnabled
	cfg.Metrics.Enabled = spec.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
