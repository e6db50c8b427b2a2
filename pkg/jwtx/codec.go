package jwtx

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the only error Verify ever returns. Bad signatures,
// garbage input, expiry and kind confusion all look the same to callers.
var ErrInvalidToken = errors.New("jwtx: invalid token")

var (
	ErrMissingSecret = errors.New("jwtx: signing secret is empty")
	ErrSharedSecret  = errors.New("jwtx: access and refresh secrets must differ")
	ErrTTLOrder      = errors.New("jwtx: refresh ttl must exceed access ttl")
)

// CodecConfig holds the secrets and lifetimes of both token kinds.
type CodecConfig struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration

	// Issuer is stamped into and enforced on every token. Optional.
	Issuer string

	// Leeway tolerates small clock skew on exp/nbf.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Codec issues and verifies HS256 tokens. It is safe for concurrent use.
type Codec struct {
	access  keyring
	refresh keyring
	issuer  string
	leeway  time.Duration
	now     func() time.Time
}

type keyring struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, ErrSharedSecret
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("%w: access=%s refresh=%s", ErrTTLOrder, cfg.AccessTTL, cfg.RefreshTTL)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		access:  keyring{secret: cfg.AccessSecret, ttl: cfg.AccessTTL},
		refresh: keyring{secret: cfg.RefreshSecret, ttl: cfg.RefreshTTL},
		issuer:  cfg.Issuer,
		leeway:  cfg.Leeway,
		now:     now,
	}, nil
}

// IssueAccessToken signs a short lived token for userID at the given version.
func (c *Codec) IssueAccessToken(userID string, tokenVersion int64) (string, error) {
	return c.issue(userID, tokenVersion, KindAccess)
}

// IssueRefreshToken signs a long lived token, with its own secret.
func (c *Codec) IssueRefreshToken(userID string, tokenVersion int64) (string, error) {
	return c.issue(userID, tokenVersion, KindRefresh)
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.access.ttl }

func (c *Codec) issue(userID string, tokenVersion int64, kind Kind) (string, error) {
	if userID == "" {
		return "", errors.New("jwtx: empty subject")
	}
	kr := c.keyring(kind)
	claims := newClaims(userID, tokenVersion, kind, c.issuer, kr.ttl, c.now().UTC())

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(kr.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind using the secret matching kind.
func (c *Codec) Verify(token string, kind Kind) (*Claims, error) {
	if token == "" || !kind.valid() {
		return nil, ErrInvalidToken
	}
	kr := c.keyring(kind)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return kr.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Type != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) keyring(kind Kind) keyring {
	if kind == KindRefresh {
		return c.refresh
	}
	return c.access
}
