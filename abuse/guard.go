// Package abuse tracks per-identifier failures and blocks identifiers that
// cross a threshold. One Guard per failure domain (login attempts, captcha
// verification), all sharing the same cache-backed primitives.
//
// The guard fails open: when the cache is unreachable it reports "not
// blocked" and drops the failure, so a cache outage can never lock out
// legitimate users.
package abuse

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Silent-Watcher/note-app-api/cache"
)

// Policy parameterizes one failure domain. The failure counter lives under
// FailurePrefix+identifier with FailureWindow of TTL; once Threshold
// failures accumulate within the window, a block flag is written under
// BlockPrefix+identifier for BlockFor and the counter is deleted in the
// same transaction.
type Policy struct {
	Name          string
	FailurePrefix string
	BlockPrefix   string
	FailureWindow time.Duration
	Threshold     int
	BlockFor      time.Duration
}

// LoginPolicy is the failure domain for failed credential checks by IP.
func LoginPolicy() Policy {
	return Policy{
		Name:          "login",
		FailurePrefix: "login:failure:ip-",
		BlockPrefix:   "login:block:ip-",
		FailureWindow: 30 * time.Minute,
		Threshold:     5,
		BlockFor:      24 * time.Hour,
	}
}

// CaptchaPolicy is the failure domain for failed captcha verifications by IP.
func CaptchaPolicy() Policy {
	return Policy{
		Name:          "captcha",
		FailurePrefix: "recaptcha:fail:ip-",
		BlockPrefix:   "recaptcha:block:ip-",
		FailureWindow: time.Hour,
		Threshold:     5,
		BlockFor:      24 * time.Hour,
	}
}

// Guard enforces one Policy. Safe for concurrent use.
type Guard struct {
	cache  *cache.Atomic
	policy Policy
	log    logrus.FieldLogger

	// OnBlock, when set, is invoked after an identifier transitions to
	// blocked. Set it before the guard is used.
	OnBlock func(identifier string, failures int64)

	// OnFailOpen, when set, is invoked each time a block check is answered
	// permissively because the cache was unreachable. Set it before the
	// guard is used.
	OnFailOpen func(identifier string)
}

// NewGuard creates a Guard for the given policy.
func NewGuard(c *cache.Atomic, policy Policy, log logrus.FieldLogger) *Guard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guard{
		cache:  c,
		policy: policy,
		log:    log,
	}
}

func (g *Guard) failureKey(identifier string) string {
	return g.policy.FailurePrefix + identifier
}

func (g *Guard) blockKey(identifier string) string {
	return g.policy.BlockPrefix + identifier
}

// IsBlocked reports whether the identifier is currently blocked. An
// unreachable cache reads as "not blocked".
func (g *Guard) IsBlocked(ctx context.Context, identifier string) bool {
	_, found, err := g.cache.Get(ctx, g.blockKey(identifier))
	if err != nil {
		g.log.WithError(err).WithFields(logrus.Fields{
			"domain":     g.policy.Name,
			"identifier": identifier,
		}).Warn("block check unavailable, failing open")
		if g.OnFailOpen != nil {
			g.OnFailOpen(identifier)
		}
		return false
	}
	return found
}

// RecordFailure counts one failure for the identifier. When the counter
// reaches the policy threshold, the block flag is set and the counter
// deleted in a single atomic transaction, so at no point do both (or
// neither) exist.
func (g *Guard) RecordFailure(ctx context.Context, identifier string) error {
	count, err := g.cache.IncrWithTTL(ctx, g.failureKey(identifier), g.policy.FailureWindow)
	if err != nil {
		g.log.WithError(err).WithField("domain", g.policy.Name).
			Warn("failure tracking unavailable, dropping failure")
		return nil
	}

	if count < int64(g.policy.Threshold) {
		return nil
	}

	_, err = g.cache.Transact(ctx, []cache.Op{
		{Name: "set", Args: []interface{}{g.blockKey(identifier), "1", "ex", int64(g.policy.BlockFor.Seconds())}},
		{Name: "del", Args: []interface{}{g.failureKey(identifier)}},
	})
	if err != nil {
		g.log.WithError(err).WithField("domain", g.policy.Name).
			Error("block transaction failed")
		return nil
	}

	g.log.WithFields(logrus.Fields{
		"domain":      g.policy.Name,
		"identifier":  identifier,
		"failures":    count,
		"blocked_for": g.policy.BlockFor.String(),
	}).Warnf("identifier blocked after %d failed attempts", count)

	if g.OnBlock != nil {
		g.OnBlock(identifier, count)
	}
	return nil
}

// ResetFailures clears the failure counter after a successful attempt, so
// isolated failures never accumulate toward a block.
func (g *Guard) ResetFailures(ctx context.Context, identifier string) error {
	if err := g.cache.Del(ctx, g.failureKey(identifier)); err != nil {
		g.log.WithError(err).WithField("domain", g.policy.Name).
			Warn("failure reset unavailable")
		return nil
	}
	return nil
}
