// Package session persists refresh-token rotation records. One record is
// created per issued refresh token and is never deleted on rotation — the
// superseded record stays behind with status "invalid", which is what makes
// token-reuse detection possible.
package session
