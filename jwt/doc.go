// Package jwt signs and verifies the access and refresh tokens issued by
// the session rotation engine. Both token kinds are HS256-signed and carry
// the owning user's ID; refresh tokens are additionally persisted (hashed)
// server-side, so a valid signature alone never grants a refresh.
package jwt
