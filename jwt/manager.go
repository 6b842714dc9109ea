package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenExpired is returned when a token's signature is valid but its
// expiry claim has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenMalformed covers every other verification failure: bad signature,
// wrong signing method, garbled payload, missing claims.
var ErrTokenMalformed = errors.New("token malformed")

// Config defines the token parameters. Access and refresh tokens are signed
// with distinct secrets so a leaked access key cannot mint refresh tokens.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. Immutable after construction and safe
// for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the config and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// SignAccess issues a short-lived access token for the user.
func (m *Manager) SignAccess(userID string) (string, error) {
	return m.sign(userID, m.config.AccessTTL, m.config.AccessSecret)
}

// SignRefresh issues a refresh token for the user. Each token carries a
// unique jti so two tokens minted in the same second never collide.
func (m *Manager) SignRefresh(userID string) (string, error) {
	return m.sign(userID, m.config.RefreshTTL, m.config.RefreshSecret)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.parse(token, m.config.AccessSecret)
}

// ParseRefresh verifies a refresh token and returns its claims. The
// distinction between ErrTokenExpired and ErrTokenMalformed is preserved so
// the caller can surface "please log in again" versus "invalid token".
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(token, m.config.RefreshSecret)
}

func (m *Manager) sign(userID string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) parse(token string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
