package session

import "time"

// TokenStatus is the lifecycle state of a refresh-token record.
type TokenStatus string

const (
	// TokenValid marks the single live token of a lineage.
	TokenValid TokenStatus = "valid"
	// TokenInvalid marks a superseded, expired, or revoked token.
	TokenInvalid TokenStatus = "invalid"
)

// Record is one refresh-token rotation record. Immutable once written
// except for Status and RevokedAt.
//
// ExpiresAt is the sliding window fixed at issuance; RootIssuedAt anchors
// the absolute session ceiling and is carried forward unchanged through
// every rotation in the lineage.
type Record struct {
	ID           string      `bson:"_id"`
	UserID       string      `bson:"user"`
	TokenHash    string      `bson:"hash"`
	IssuedAt     time.Time   `bson:"issuedAt"`
	ExpiresAt    time.Time   `bson:"expiresAt"`
	RevokedAt    *time.Time  `bson:"revokedAt,omitempty"`
	RootIssuedAt time.Time   `bson:"rootIssuedAt"`
	Status       TokenStatus `bson:"status"`
}
