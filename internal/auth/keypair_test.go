package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (*rsa.PrivateKey, []byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
}

func TestGenerateJWT_Claims(t *testing.T) {
	key, privPEM, pubPEM := testKeys(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	signed, err := GenerateJWT(TokenConfig{
		Account:     "myorg.acct",
		User:        "alice",
		PrivateKey:  privPEM,
		PublicKey:   pubPEM,
		ExpireAfter: 10 * time.Minute,
	}, now)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Equal(t, "MYORG-ACCT.ALICE", claims.Subject)
	derived, err := fingerprint(key, nil)
	require.NoError(t, err)
	assert.Equal(t, "MYORG-ACCT.ALICE."+derived, claims.Issuer)
	assert.True(t, claims.ExpiresAt.Time.Equal(now.Add(10*time.Minute)), "expiry %v", claims.ExpiresAt)
}

func TestGenerateJWT_InvalidKey(t *testing.T) {
	_, err := GenerateJWT(TokenConfig{Account: "a", User: "u", PrivateKey: []byte("nope")}, time.Now())
	assert.Error(t, err)
}

func TestTokenSource_CachesUntilNearExpiry(t *testing.T) {
	_, privPEM, _ := testKeys(t)
	src, err := NewTokenSource(TokenConfig{Account: "a", User: "u", PrivateKey: privPEM, ExpireAfter: 5 * time.Minute})
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	first, err := src.Token()
	require.NoError(t, err)

	now = now.Add(3 * time.Minute)
	second, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second, "token refreshed before the margin")

	now = now.Add(90 * time.Second)
	third, err := src.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "token not refreshed inside the margin")
}
