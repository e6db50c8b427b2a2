package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Refresh tokens must always outlive access tokens.
const (
	// DefaultAccessTokenTTL is presented on every request, keep it short.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is only ever used to mint new access tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Kind selects which secret and TTL a token is bound to.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims is the small claim set carried by both token kinds.
type Claims struct {
	jwt.RegisteredClaims

	// TokenVersion is a snapshot of the user's version at issuance. A token
	// is only honoured while this equals the version the directory holds.
	TokenVersion int64 `json:"tv"`

	// Type pins the token to one kind so a refresh token can never pass as
	// an access token even if both secrets leaked into the same place.
	Type Kind `json:"typ"`
}

// UserID is the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

func newClaims(userID string, version int64, kind Kind, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TokenVersion: version,
		Type:         kind,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
