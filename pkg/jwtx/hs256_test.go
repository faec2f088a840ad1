package jwtx_test

import (
	"testing"
	"time"

	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTestKeyring(t *testing.T, use, keyID string) (*jwtx.Keyring, []byte) {
	t.Helper()

	secret, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)

	ring := jwtx.NewKeyring()
	require.NoError(t, ring.SetActive(use, keyID, secret, time.Now()))
	return ring, secret
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	ring, _ := newTestKeyring(t, jwtx.UseAccess, "key-1")
	verifier := &jwtx.Verifier{Keys: ring, Issuer: "sitepass"}

	signer, err := ring.ActiveSigner(jwtx.UseAccess)
	require.NoError(t, err)

	claims := jwtx.NewClaims(
		jwtx.UseAccess, "user-1", "alice", "alice@example.com", "premium",
		"sitepass", 5*time.Minute, time.Now(),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	parsed, err := verifier.Verify(token, jwtx.UseAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", parsed.Subject)
	require.Equal(t, "alice", parsed.Username)
	require.Equal(t, "alice@example.com", parsed.Email)
	require.Equal(t, "premium", parsed.AccessLevel)
	require.NotEmpty(t, parsed.ID)
}

func TestVerifyRejectsWrongUse(t *testing.T) {
	t.Parallel()

	ring, _ := newTestKeyring(t, jwtx.UseRefresh, "key-1")
	verifier := &jwtx.Verifier{Keys: ring}

	signer, err := ring.ActiveSigner(jwtx.UseRefresh)
	require.NoError(t, err)

	claims := jwtx.NewClaims(jwtx.UseRefresh, "user-1", "alice", "", "basic", "sitepass", time.Hour, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token, jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrWrongUse)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	ring, _ := newTestKeyring(t, jwtx.UseAccess, "key-1")
	verifier := &jwtx.Verifier{Keys: ring}

	signer, err := ring.ActiveSigner(jwtx.UseAccess)
	require.NoError(t, err)

	claims := jwtx.NewClaims(jwtx.UseAccess, "user-1", "alice", "", "basic", "sitepass",
		time.Minute, time.Now().Add(-time.Hour))
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token, jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyRejectsUnknownKeyID(t *testing.T) {
	t.Parallel()

	ringA, _ := newTestKeyring(t, jwtx.UseAccess, "key-a")
	ringB, _ := newTestKeyring(t, jwtx.UseAccess, "key-b")
	verifier := &jwtx.Verifier{Keys: ringB}

	signer, err := ringA.ActiveSigner(jwtx.UseAccess)
	require.NoError(t, err)

	claims := jwtx.NewClaims(jwtx.UseAccess, "user-1", "alice", "", "basic", "sitepass", time.Minute, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token, jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrUnknownKeyID)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	t.Parallel()

	ring, _ := newTestKeyring(t, jwtx.UseAccess, "key-1")

	otherSecret, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)
	otherRing := jwtx.NewKeyring()
	require.NoError(t, otherRing.SetActive(jwtx.UseAccess, "key-1", otherSecret, time.Now()))

	signer, err := ring.ActiveSigner(jwtx.UseAccess)
	require.NoError(t, err)

	claims := jwtx.NewClaims(jwtx.UseAccess, "user-1", "alice", "", "basic", "sitepass", time.Minute, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	// Same kid, different secret material: signature must not verify.
	verifier := &jwtx.Verifier{Keys: otherRing}
	_, err = verifier.Verify(token, jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	ring, _ := newTestKeyring(t, jwtx.UseAccess, "key-1")
	verifier := &jwtx.Verifier{Keys: ring}

	_, err := verifier.Verify("not.a.token", jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	_, err = verifier.Verify("", jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewSigner("kid", []byte("short"))
	require.Error(t, err)
}
