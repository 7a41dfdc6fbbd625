package jwtx_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testIssuer = "portal-test"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, now *time.Time) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		VerifyOptions: jwtx.VerifyOptions{
			Issuer:   testIssuer,
			Audience: []string{"portal"},
			Now:      func() time.Time { return *now },
		},
		NumKeys: 2,
	})
	require.NoError(t, err)
	return km
}

func accessClaims(now time.Time) jwtx.Claims {
	return jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  "user-1",
		OrgID:    "org-1",
		Role:     "admin",
		Email:    "a@example.com",
		Issuer:   testIssuer,
		Audience: []string{"portal"},
		TTL:      15 * time.Minute,
		Now:      now,
	})
}

func TestSignAndVerify(t *testing.T) {
	now := epoch
	km := newManager(t, &now)
	require.True(t, km.IsReady())
	require.Equal(t, 2, km.NumSigners())
	require.Len(t, km.KeySet().PublicJWKS().Keys, 2)

	token, err := km.Signer().Sign(accessClaims(now))
	require.NoError(t, err)

	claims, err := km.Verifier().Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "org-1", claims.OrgID)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, jwtx.TokenTypeAccess, claims.Type)
	require.NotEmpty(t, claims.ID)
	require.Equal(t, 15*time.Minute, claims.ExpiresIn(now))
}

func TestVerifyRejects(t *testing.T) {
	now := epoch
	km := newManager(t, &now)

	t.Run("expired", func(t *testing.T) {
		token, err := km.Signer().Sign(accessClaims(epoch))
		require.NoError(t, err)

		now = epoch.Add(16 * time.Minute)
		defer func() { now = epoch }()

		_, err = km.Verifier().Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := accessClaims(now)
		c.Issuer = "someone-else"
		token, err := km.Signer().Sign(c)
		require.NoError(t, err)

		_, err = km.Verifier().Verify(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("wrong type", func(t *testing.T) {
		c := accessClaims(now)
		c.Type = "refresh"
		token, err := km.Signer().Sign(c)
		require.NoError(t, err)

		_, err = km.Verifier().Verify(token)
		require.ErrorIs(t, err, jwtx.ErrWrongType)
	})

	t.Run("foreign key", func(t *testing.T) {
		other := newManager(t, &now)
		token, err := other.Signer().Sign(accessClaims(now))
		require.NoError(t, err)

		_, err = km.Verifier().Verify(token)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("none algorithm", func(t *testing.T) {
		forged := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims(now))
		forged.Header["kid"] = km.Signer().KID()
		unsigned, err := forged.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = km.Verifier().Verify(unsigned)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := km.Verifier().Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestFileKeyManagerSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	opts := jwtx.KeyManagerOptions{
		VerifyOptions: jwtx.VerifyOptions{Issuer: testIssuer, Now: func() time.Time { return epoch }},
		NumKeys:       1,
	}

	first, err := jwtx.NewFileKeyManager(dir, opts)
	require.NoError(t, err)

	c := accessClaims(epoch)
	c.Audience = nil
	token, err := first.Signer().Sign(c)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.pem"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	second, err := jwtx.NewFileKeyManager(dir, opts)
	require.NoError(t, err)
	require.Equal(t, first.Signer().KID(), second.Signer().KID())

	_, err = second.Verifier().Verify(token)
	require.NoError(t, err)
}

func TestFileKeyManagerRejectsBadPEM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pem"), []byte("nope"), 0600))

	_, err := jwtx.NewFileKeyManager(dir, jwtx.KeyManagerOptions{
		VerifyOptions: jwtx.VerifyOptions{Issuer: testIssuer},
	})
	require.Error(t, err)
}

func TestJWKRoundTrip(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("kid-1", pemKey)
	require.NoError(t, err)

	jwk := signer.PublicJWK()
	require.Equal(t, "OKP", jwk.Kty)
	require.Equal(t, "kid-1", jwk.Kid)

	pub, err := jwk.PublicKey()
	require.NoError(t, err)
	require.Len(t, pub, 32)

	_, err = jwtx.JWK{Kty: "RSA"}.PublicKey()
	require.Error(t, err)
}
