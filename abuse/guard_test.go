package abuse

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Silent-Watcher/note-app-api/cache"
	"github.com/Silent-Watcher/note-app-api/executor"
)

func newTestGuard(t *testing.T, policy Policy) (*Guard, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	breaker := executor.NewBreaker(executor.Config{
		Name:    "cache",
		Timeout: time.Second,
		Logger:  log,
	})

	guard := NewGuard(cache.New(rdb, breaker), policy, log)
	return guard, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRecordFailureBlocksAtThreshold(t *testing.T) {
	policy := Policy{
		Name:          "login",
		FailurePrefix: "login:failure:ip-",
		BlockPrefix:   "login:block:ip-",
		FailureWindow: 30 * time.Minute,
		Threshold:     5,
		BlockFor:      24 * time.Hour,
	}
	guard, mr, done := newTestGuard(t, policy)
	defer done()

	ctx := context.Background()
	const ip = "10.0.0.1"

	var blockedID string
	var blockedCount int64
	guard.OnBlock = func(identifier string, failures int64) {
		blockedID = identifier
		blockedCount = failures
	}

	for i := 0; i < 4; i++ {
		if err := guard.RecordFailure(ctx, ip); err != nil {
			t.Fatalf("record failure %d: %v", i+1, err)
		}
		if guard.IsBlocked(ctx, ip) {
			t.Fatalf("blocked after only %d failures", i+1)
		}
	}

	if err := guard.RecordFailure(ctx, ip); err != nil {
		t.Fatalf("threshold failure: %v", err)
	}

	if !guard.IsBlocked(ctx, ip) {
		t.Fatal("expected identifier to be blocked at threshold")
	}
	if mr.Exists("login:failure:ip-" + ip) {
		t.Fatal("failure counter must be deleted in the block transaction")
	}
	if !mr.Exists("login:block:ip-" + ip) {
		t.Fatal("block flag missing")
	}
	if ttl := mr.TTL("login:block:ip-" + ip); ttl != 24*time.Hour {
		t.Fatalf("expected 24h block TTL, got %s", ttl)
	}
	if blockedID != ip || blockedCount != 5 {
		t.Fatalf("OnBlock hook got (%q, %d)", blockedID, blockedCount)
	}
}

func TestResetFailuresStartsFresh(t *testing.T) {
	guard, mr, done := newTestGuard(t, LoginPolicy())
	defer done()

	ctx := context.Background()
	const ip = "192.0.2.7"

	for i := 0; i < 3; i++ {
		if err := guard.RecordFailure(ctx, ip); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := guard.ResetFailures(ctx, ip); err != nil {
		t.Fatalf("reset failures: %v", err)
	}

	if err := guard.RecordFailure(ctx, ip); err != nil {
		t.Fatalf("record failure after reset: %v", err)
	}

	got, err := mr.Get("login:failure:ip-" + ip)
	if err != nil {
		t.Fatalf("counter missing after reset+failure: %v", err)
	}
	if got != "1" {
		t.Fatalf("expected a fresh count of 1 after reset, got %s", got)
	}
}

func TestGuardFailsOpenWhenCacheDown(t *testing.T) {
	guard, mr, done := newTestGuard(t, LoginPolicy())
	defer done()

	ctx := context.Background()
	mr.SetError("connection refused")

	var failOpen int
	guard.OnFailOpen = func(identifier string) {
		if identifier != "10.0.0.9" {
			t.Errorf("fail-open hook got identifier %q", identifier)
		}
		failOpen++
	}

	if guard.IsBlocked(ctx, "10.0.0.9") {
		t.Fatal("a cache outage must never read as blocked")
	}
	if failOpen != 1 {
		t.Fatalf("expected 1 fail-open notification, got %d", failOpen)
	}
	if err := guard.RecordFailure(ctx, "10.0.0.9"); err != nil {
		t.Fatalf("record failure must swallow cache outages, got %v", err)
	}
	if err := guard.ResetFailures(ctx, "10.0.0.9"); err != nil {
		t.Fatalf("reset failures must swallow cache outages, got %v", err)
	}
}

func TestFailureDomainsAreIndependent(t *testing.T) {
	login, mr, done := newTestGuard(t, LoginPolicy())
	defer done()

	captcha := NewGuard(login.cache, CaptchaPolicy(), login.log)

	ctx := context.Background()
	const ip = "203.0.113.4"

	for i := 0; i < 5; i++ {
		if err := captcha.RecordFailure(ctx, ip); err != nil {
			t.Fatalf("captcha failure: %v", err)
		}
	}

	if !captcha.IsBlocked(ctx, ip) {
		t.Fatal("captcha domain should be blocked")
	}
	if login.IsBlocked(ctx, ip) {
		t.Fatal("login domain must be unaffected by captcha failures")
	}
	if !mr.Exists("recaptcha:block:ip-" + ip) {
		t.Fatal("captcha block flag missing")
	}
}

func TestFailureCounterExpiresWithWindow(t *testing.T) {
	policy := LoginPolicy()
	guard, mr, done := newTestGuard(t, policy)
	defer done()

	ctx := context.Background()
	const ip = "198.51.100.2"

	for i := 0; i < 4; i++ {
		if err := guard.RecordFailure(ctx, ip); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	mr.FastForward(policy.FailureWindow + time.Second)

	if err := guard.RecordFailure(ctx, ip); err != nil {
		t.Fatalf("record failure after window: %v", err)
	}
	if guard.IsBlocked(ctx, ip) {
		t.Fatal("failures outside the window must not count toward a block")
	}
}
