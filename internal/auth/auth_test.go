package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/db"
)

type fakeUsers struct {
	users map[string]*db.User
	err   error
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (*db.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
}

func newUsers(t *testing.T) *fakeUsers {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)
	return &fakeUsers{users: map[string]*db.User{
		"admin": {ID: 1, Username: "admin", Password: string(hash)},
	}}
}

func testConfig() Config {
	return Config{JWTSecret: "test-secret", TokenDuration: time.Hour}
}

func TestGate_LoginAndValidate(t *testing.T) {
	gate := NewGate(newUsers(t), nil, testConfig())
	ctx := context.Background()

	token, err := gate.Login(ctx, "  admin ", "s3cret!")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
	assert.Equal(t, int64(3600), token.ExpiresIn())
	assert.Equal(t, "admin", token.Identity.Username)

	identity, err := gate.Validate(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, uint(1), identity.UserID)
	assert.Equal(t, "admin", identity.Username)
	assert.Equal(t, token.Identity.TokenID, identity.TokenID)
}

func TestGate_LoginRejectsBadCredentials(t *testing.T) {
	gate := NewGate(newUsers(t), nil, testConfig())
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "nope"},
		{"unknown user", "ghost", "s3cret!"},
		{"empty username", "", "s3cret!"},
		{"empty password", "admin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := gate.Login(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
			assert.Nil(t, token)
		})
	}
}

func TestGate_LoginStoreFailure(t *testing.T) {
	users := &fakeUsers{err: apperr.Wrap(apperr.ErrPersistence, errors.New("db down"), "load user")}
	gate := NewGate(users, nil, testConfig())

	_, err := gate.Login(context.Background(), "admin", "s3cret!")
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.NotErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestGate_LogoutRevokes(t *testing.T) {
	gate := NewGate(newUsers(t), nil, testConfig())
	ctx := context.Background()

	token, err := gate.Login(ctx, "admin", "s3cret!")
	require.NoError(t, err)
	other, err := gate.Login(ctx, "admin", "s3cret!")
	require.NoError(t, err)

	require.NoError(t, gate.Logout(ctx, token.Value))

	_, err = gate.Validate(ctx, token.Value)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = gate.Validate(ctx, other.Value)
	assert.NoError(t, err)
}

func TestGate_ValidateRejectsBadTokens(t *testing.T) {
	gate := NewGate(newUsers(t), nil, testConfig())
	ctx := context.Background()

	token, err := gate.Login(ctx, "admin", "s3cret!")
	require.NoError(t, err)

	foreign := NewGate(newUsers(t), nil, Config{JWTSecret: "other-secret", TokenDuration: time.Hour})
	foreignToken, err := foreign.Login(ctx, "admin", "s3cret!")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id":  1,
		"username": "admin",
		"jti":      "abc",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"truncated":    token.Value[:len(token.Value)-4],
		"wrong secret": foreignToken.Value,
		"unsigned":     unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := gate.Validate(ctx, raw)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestGate_ValidateRejectsExpired(t *testing.T) {
	gate := NewGate(newUsers(t), nil, testConfig())
	ctx := context.Background()

	token, err := gate.Login(ctx, "admin", "s3cret!")
	require.NoError(t, err)

	gate.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = gate.Validate(ctx, token.Value)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestMemoryRevocations_Expire(t *testing.T) {
	store := NewMemoryRevocations()
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Revoke(ctx, "t1", time.Minute))
	revoked, err := store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisRevocations(client)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "t1", time.Minute))
	revoked, err = store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestGate_RedisBackedLogout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gate := NewGate(newUsers(t), NewRedisRevocations(client), testConfig())
	ctx := context.Background()

	token, err := gate.Login(ctx, "admin", "s3cret!")
	require.NoError(t, err)
	require.NoError(t, gate.Logout(ctx, token.Value))

	_, err = gate.Validate(ctx, token.Value)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	mr.Close()
	_, err = gate.Validate(ctx, token.Value)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}
