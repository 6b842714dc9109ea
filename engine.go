package noteapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Silent-Watcher/note-app-api/internal/audit"
	"github.com/Silent-Watcher/note-app-api/jwt"
	"github.com/Silent-Watcher/note-app-api/session"
)

// RefreshTokenRecord is one rotation record as persisted by the store.
type RefreshTokenRecord = session.Record

// RefreshTokenStore is the persistence boundary of the rotation engine.
type RefreshTokenStore = session.Store

// TokenPair is the result of issuing or rotating a session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Engine implements refresh-token rotation with reuse detection. Tokens are
// persisted as SHA-256 hashes; a raw token never reaches the store.
//
// Rotation claims before it classifies: the atomic store Claim flips the
// record to invalid first, so of any number of concurrent presentations of
// the same token exactly one proceeds and the rest land on the reuse path.
type Engine struct {
	cfg     SessionConfig
	store   session.Store
	tokens  *jwt.Manager
	log     logrus.FieldLogger
	audit   *audit.Dispatcher
	metrics *Metrics
	now     func() time.Time
}

func newEngine(
	cfg SessionConfig,
	store session.Store,
	tokens *jwt.Manager,
	log logrus.FieldLogger,
	dispatcher *audit.Dispatcher,
	metrics *Metrics,
	now func() time.Time,
) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		tokens:  tokens,
		log:     log,
		audit:   dispatcher,
		metrics: metrics,
		now:     now,
	}
}

// Issue starts a new session lineage for the user and returns its first
// token pair. RootIssuedAt is fixed here and carried unchanged through every
// later rotation.
func (e *Engine) Issue(ctx context.Context, userID string) (TokenPair, error) {
	pair, err := e.sign(userID)
	if err != nil {
		return TokenPair{}, err
	}

	now := e.now().UTC()
	rec := &session.Record{
		ID:           uuid.NewString(),
		UserID:       userID,
		TokenHash:    hashToken(pair.RefreshToken),
		IssuedAt:     now,
		ExpiresAt:    now.Add(e.cfg.SlidingLifetime),
		RootIssuedAt: now,
		Status:       session.TokenValid,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metrics.Inc(MetricIssueSuccess)
	e.emit(ctx, audit.Event{
		EventType: audit.TypeTokenIssued,
		UserID:    userID,
		RecordID:  rec.ID,
		Success:   true,
	})
	return pair, nil
}

// Rotate exchanges a refresh token for a fresh pair. Classification order:
// signature, record existence, reuse, sliding expiry, absolute ceiling.
func (e *Engine) Rotate(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	started := time.Now()

	claims, err := e.tokens.ParseRefresh(rawRefreshToken)
	if err != nil {
		e.metrics.Inc(MetricRotateFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPair{}, ErrTokenExpired
		}
		return TokenPair{}, ErrTokenInvalid
	}

	rec, claimed, err := e.store.Claim(ctx, claims.UserID, hashToken(rawRefreshToken))
	if err != nil {
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	if rec == nil {
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, ErrTokenInvalid
	}

	now := e.now().UTC()

	if !claimed {
		return TokenPair{}, e.rejectReuse(ctx, rec, now)
	}
	if now.After(rec.ExpiresAt) {
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, ErrTokenExpired
	}
	if now.Sub(rec.RootIssuedAt) >= e.cfg.MaxSessionAge {
		e.metrics.Inc(MetricRotateFailure)
		e.metrics.Inc(MetricSessionCeilingHit)
		return TokenPair{}, ErrSessionExpired
	}

	pair, err := e.sign(rec.UserID)
	if err != nil {
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, err
	}

	successor := &session.Record{
		ID:           uuid.NewString(),
		UserID:       rec.UserID,
		TokenHash:    hashToken(pair.RefreshToken),
		IssuedAt:     now,
		ExpiresAt:    now.Add(e.cfg.SlidingLifetime),
		RootIssuedAt: rec.RootIssuedAt,
		Status:       session.TokenValid,
	}
	if err := e.store.Create(ctx, successor); err != nil {
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metrics.Inc(MetricRotateSuccess)
	e.metrics.Observe(MetricRotateLatency, time.Since(started))
	e.emit(ctx, audit.Event{
		EventType: audit.TypeTokenRotated,
		UserID:    rec.UserID,
		RecordID:  successor.ID,
		Success:   true,
	})
	return pair, nil
}

// rejectReuse handles presentation of an already-rotated token. The record
// gets a revocation stamp so the incident stays visible in the collection.
func (e *Engine) rejectReuse(ctx context.Context, rec *session.Record, now time.Time) error {
	if err := e.store.MarkRevoked(ctx, rec.ID, now); err != nil {
		e.log.WithError(err).WithField("record_id", rec.ID).
			Warn("could not stamp revocation on reused token")
	}

	e.log.WithFields(logrus.Fields{
		"user_id":   rec.UserID,
		"record_id": rec.ID,
	}).Warn("refresh token reuse detected")

	e.metrics.Inc(MetricRotateFailure)
	e.metrics.Inc(MetricReuseDetected)
	e.emit(ctx, audit.Event{
		EventType: audit.TypeTokenReuse,
		UserID:    rec.UserID,
		RecordID:  rec.ID,
		Error:     ErrTokenReused.Error(),
	})
	return ErrTokenReused
}

// InvalidateAll ends every session of the user and reports how many records
// were invalidated. Tokens presented afterwards resolve as reuse.
func (e *Engine) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	n, err := e.store.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metrics.Inc(MetricInvalidateAll)
	e.emit(ctx, audit.Event{
		EventType: audit.TypeLogoutAll,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"invalidated": strconv.FormatInt(n, 10)},
	})
	return n, nil
}

func (e *Engine) sign(userID string) (TokenPair, error) {
	access, err := e.tokens.SignAccess(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := e.tokens.SignRefresh(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) emit(ctx context.Context, event audit.Event) {
	if e.audit == nil {
		return
	}
	event.Timestamp = e.now().UTC()
	e.audit.Emit(ctx, event)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
