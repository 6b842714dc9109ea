// Package noteapi is the session-security and resilience core of the
// note-app API: rotating refresh-token sessions with reuse detection,
// IP-based abuse defense, and circuit-breaker protected access to the
// document store and the cache.
//
// # Architecture boundaries
//
// noteapi is the public surface. It exposes [Core], [Engine], [Config], the
// [RefreshTokenStore] boundary, and value types (TokenPair, MetricsSnapshot,
// AuditEvent). Per-concern machinery lives in subpackages: executor (circuit
// breaker), cache (atomic Redis operations), abuse (failure tracking and
// blocking), jwt (token signing), session (rotation records and stores).
// Audit buffering lives under internal/ and is re-exported here.
//
// # Concurrency
//
// All Core and Engine methods are safe for concurrent use after [New]
// returns. A refresh token presented by two goroutines at once resolves to
// exactly one winner; the loser observes reuse, never a second rotation.
//
// # Degradation contract
//
// Dependency outages degrade, they do not cascade: store outages surface as
// ErrDependencyUnavailable through the breaker, and cache outages make the
// abuse guards fail open so no user is locked out by an infrastructure
// failure.
package noteapi
