package jwt

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()

	cfg := Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		Issuer:        "note-app-api",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}
	return m
}

func TestSignParseRoundtrip(t *testing.T) {
	m := newTestManager(t, nil)

	access, err := m.SignAccess("user-1")
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	refresh, err := m.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}

	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected userId %q", claims.UserID)
	}

	claims, err = m.ParseRefresh(refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected userId %q", claims.UserID)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := newTestManager(t, nil)

	a, err := m.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	b, err := m.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	if a == b {
		t.Fatal("two refresh tokens for the same user must never be identical")
	}
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	m := newTestManager(t, nil)

	access, err := m.SignAccess("user-1")
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestExpiredTokenIsDistinguished(t *testing.T) {
	m := newTestManager(t, func(cfg *Config) {
		cfg.RefreshTTL = time.Nanosecond
	})

	refresh, err := m.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := m.ParseRefresh(refresh); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestGarbageTokenIsMalformed(t *testing.T) {
	m := newTestManager(t, nil)

	if _, err := m.ParseRefresh("not.a.token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}
