// Package auth issues, validates and revokes bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/db"
)

// Config holds authentication configuration
type Config struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// UserLookup finds users by name
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*db.User, error)
}

// Identity is the authenticated user behind a token
type Identity struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	TokenID  string `json:"-"`
}

// Token is an issued credential. The server trusts only its own copy of the
// expiry, never one reported by a client.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Identity  Identity
}

// ExpiresIn is the remaining lifetime in whole seconds at issuance
func (t *Token) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

type claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Gate authenticates users and checks tokens
type Gate struct {
	users   UserLookup
	revoked RevocationStore
	cfg     Config
	now     func() time.Time
}

// NewGate creates a gate. A nil revocation store keeps revocations in memory.
func NewGate(users UserLookup, revoked RevocationStore, cfg Config) *Gate {
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	return &Gate{users: users, revoked: revoked, cfg: cfg, now: time.Now}
}

// Login checks the credentials and issues a token. Unknown users and wrong
// passwords both fail with ErrUnauthorized.
func (g *Gate) Login(ctx context.Context, username, password string) (*Token, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("empty credentials: %w", apperr.ErrUnauthorized)
	}

	user, err := g.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}

	issuedAt := g.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(g.cfg.TokenDuration)
	identity := Identity{UserID: user.ID, Username: user.Username, TokenID: uuid.NewString()}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.TokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString([]byte(g.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt, Identity: identity}, nil
}

// Validate returns the identity behind a token. Missing, malformed, expired
// and revoked tokens all fail with ErrUnauthorized.
func (g *Gate) Validate(ctx context.Context, raw string) (*Identity, error) {
	c, err := g.parse(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := g.revoked.IsRevoked(ctx, c.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "check token revocation")
	}
	if revoked {
		return nil, fmt.Errorf("token revoked: %w", apperr.ErrUnauthorized)
	}

	return &Identity{UserID: c.UserID, Username: c.Username, TokenID: c.ID}, nil
}

// Logout revokes a token for the rest of its lifetime
func (g *Gate) Logout(ctx context.Context, raw string) error {
	c, err := g.parse(raw)
	if err != nil {
		return err
	}

	ttl := c.ExpiresAt.Time.Sub(g.now())
	if ttl <= 0 {
		return nil
	}
	if err := g.revoked.Revoke(ctx, c.ID, ttl); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err, "revoke token")
	}
	return nil
}

func (g *Gate) parse(raw string) (*claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing token: %w", apperr.ErrUnauthorized)
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (interface{}, error) {
		return []byte(g.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w: %w", apperr.ErrUnauthorized, err)
	}
	if c.ID == "" || c.Username == "" {
		return nil, fmt.Errorf("incomplete token claims: %w", apperr.ErrUnauthorized)
	}
	return &c, nil
}
