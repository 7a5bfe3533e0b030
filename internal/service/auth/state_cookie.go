package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateClaims is the OAuth handshake carried between the authorize redirect
// and the provider callback.
type StateClaims struct {
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
}

// StateSigner seals StateClaims into a tamper-evident cookie value.
type StateSigner struct {
	key []byte
}

// NewStateSigner creates a StateSigner keyed by secret.
func NewStateSigner(secret string) (*StateSigner, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("state secret must be at least %d characters", minSecretLength)
	}
	return &StateSigner{key: []byte(secret)}, nil
}

// Sign returns the cookie value for c.
func (s *StateSigner) Sign(c StateClaims) (string, error) {
	return sign(s.key, jwtCustomClaims{
		UserID:    c.UserID,
		TokenType: TokenTypeState,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			ID:        c.Token,
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	})
}

// Parse verifies the signature of value and returns its claims. Expiry is not
// enforced here; callers report an expired handshake as its own outcome.
func (s *StateSigner) Parse(value string) (*StateClaims, error) {
	if value == "" {
		return nil, ErrInvalidStateCookie
	}
	claims, err := parse(s.key, value, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStateCookie, err)
	}
	if claims.TokenType != TokenTypeState || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidStateCookie
	}
	return &StateClaims{
		UserID:    claims.UserID,
		Token:     claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
