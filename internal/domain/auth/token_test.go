package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("secret", "bookstore")
	require.NoError(t, err)
	return v
}

func TestVerifier_MintAndVerify(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Mint(Identity{UserID: "u1", Role: RoleAdmin}, time.Now(), time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestVerifier_Rejects(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()

	expired, err := v.Mint(Identity{UserID: "u1", Role: RoleCustomer}, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	other, err := NewVerifier("other-secret", "bookstore")
	require.NoError(t, err)
	foreign, err := other.Mint(Identity{UserID: "u1", Role: RoleCustomer}, now, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewVerifier("secret", "someone-else")
	require.NoError(t, err)
	misissued, err := wrongIssuer.Mint(Identity{UserID: "u1", Role: RoleCustomer}, now, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "bookstore"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "ROOT",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "bookstore",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "bookstore",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": misissued,
		"no expiry":    noExpiry,
		"unknown role": badRole,
		"alg none":     none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestVerifier_MintValidation(t *testing.T) {
	v := newTestVerifier(t)

	_, err := v.Mint(Identity{Role: RoleCustomer}, time.Now(), time.Hour)
	require.Error(t, err)
	_, err = v.Mint(Identity{UserID: "u1", Role: "ROOT"}, time.Now(), time.Hour)
	require.Error(t, err)
	_, err = v.Mint(Identity{UserID: "u1", Role: RoleCustomer}, time.Now(), 0)
	require.Error(t, err)
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier("", "bookstore")
	require.Error(t, err)
}

func TestIdentityContext(t *testing.T) {
	_, err := FromContext(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleCustomer})
	id, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.False(t, id.IsAdmin())
}
