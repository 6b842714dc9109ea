package noteapi

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret")
	cfg.JWT.RefreshSecret = []byte("refresh-secret")
	return cfg
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("config without secrets must not validate")
	}

	cfg.JWT.AccessSecret = []byte("access-secret")
	if err := cfg.Validate(); err == nil {
		t.Fatal("config without refresh secret must not validate")
	}

	cfg.JWT.RefreshSecret = []byte("refresh-secret")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsSlidingPastCeiling(t *testing.T) {
	cfg := validTestConfig()
	cfg.Session.SlidingLifetime = 8 * 24 * time.Hour
	cfg.Session.MaxSessionAge = 7 * 24 * time.Hour

	if err := cfg.Validate(); err == nil {
		t.Fatal("sliding lifetime beyond the ceiling must not validate")
	}
}

func TestApplyDefaultsFillsGaps(t *testing.T) {
	var cfg Config
	cfg.JWT.AccessSecret = []byte("a")
	cfg.JWT.RefreshSecret = []byte("r")
	cfg.applyDefaults()

	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("access TTL default: %v", cfg.JWT.AccessTTL)
	}
	if cfg.Session.SlidingLifetime != cfg.JWT.RefreshTTL {
		t.Fatalf("sliding lifetime should default to refresh TTL, got %v", cfg.Session.SlidingLifetime)
	}
	if cfg.Session.MaxSessionAge != 7*24*time.Hour {
		t.Fatalf("max session age default: %v", cfg.Session.MaxSessionAge)
	}
	if cfg.Abuse.Login.Threshold != 5 || cfg.Abuse.Captcha.Threshold != 5 {
		t.Fatal("abuse policies should default to the standard presets")
	}
	if cfg.Breaker.Store.Timeout != 2*time.Second || cfg.Breaker.Cache.Timeout != 3*time.Second {
		t.Fatalf("breaker timeout defaults: store %v cache %v",
			cfg.Breaker.Store.Timeout, cfg.Breaker.Cache.Timeout)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "env-access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "env-refresh-secret")
	t.Setenv("MAX_SESSION_DAYS", "3")
	t.Setenv("REFRESH_TOKEN_TTL", "12h")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}

	if string(cfg.JWT.AccessSecret) != "env-access-secret" {
		t.Fatalf("access secret not picked up: %q", cfg.JWT.AccessSecret)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("access TTL default: %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 12*time.Hour {
		t.Fatalf("refresh TTL override: %v", cfg.JWT.RefreshTTL)
	}
	if cfg.Session.MaxSessionAge != 3*24*time.Hour {
		t.Fatalf("max session age override: %v", cfg.Session.MaxSessionAge)
	}
}

func TestConfigFromEnvRequiresSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("missing secrets must fail env loading")
	}
}
