// Package token issues and resolves password recovery tokens.
//
// A token is an HS256 JWT naming the user. It also carries a fingerprint of
// the account's current password hash, so a token stops resolving as soon
// as the password changes. That makes tokens single-use without storing them.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"troupon/internal/account/models"
	id "troupon/pkg/domain"
	"troupon/pkg/platform/sentinel"
)

const (
	// Audience scopes tokens to password recovery so no other HS256 token
	// signed with the same key is accepted.
	Audience = "password-recovery"
	Issuer   = "troupon"

	DefaultTTL   = 24 * time.Hour
	MinSecretLen = 32
)

// UserLookup is the slice of the account store the codec needs.
type UserLookup interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
}

// Claims are the signed contents of a recovery token.
type Claims struct {
	PasswordFingerprint string `json:"pwf"`
	jwt.RegisteredClaims
}

// Codec converts users to recovery tokens and back.
type Codec struct {
	secret []byte
	ttl    time.Duration
	users  UserLookup
	now    func() time.Time
}

type Option func(*Codec)

// WithTTL sets token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func New(secret string, users UserLookup, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("recovery secret must be at least %d bytes", MinSecretLen)
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		users:  users,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue returns a URL-safe token for user. It only fails if signing fails.
func (c *Codec) Issue(user *models.User) (string, error) {
	now := c.now()
	claims := Claims{
		PasswordFingerprint: c.fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign recovery token: %w", err)
	}
	return signed, nil
}

// Resolve returns the user a token was issued for. Malformed, tampered,
// expired, foreign and superseded tokens all yield sentinel.ErrNotFound.
// Account store failures other than not-found are returned as is.
func (c *Codec) Resolve(ctx context.Context, raw string) (*models.User, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("recovery token: %w: %w", sentinel.ErrNotFound, err)
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("recovery token subject: %w", sentinel.ErrNotFound)
	}

	user, err := c.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("recovery token user: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve recovery token: %w", err)
	}

	if !hmac.Equal([]byte(claims.PasswordFingerprint), []byte(c.fingerprint(user))) {
		return nil, fmt.Errorf("recovery token superseded: %w", sentinel.ErrNotFound)
	}
	return user, nil
}

// fingerprint binds a token to the user's current password hash.
func (c *Codec) fingerprint(user *models.User) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte("pwf:"))
	mac.Write([]byte(user.ID.String()))
	mac.Write([]byte{':'})
	mac.Write([]byte(user.PasswordHash))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16])
}
