package jwtx_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestKeyringRotationRetiresPreviousActive(t *testing.T) {
	t.Parallel()

	ring := jwtx.NewKeyring()
	now := time.Now()

	s1, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NoError(t, ring.SetActive(jwtx.UseAccess, "key-1", s1, now))

	s2, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NoError(t, ring.SetActive(jwtx.UseAccess, "key-2", s2, now))

	kid, ok := ring.ActiveKeyID(jwtx.UseAccess)
	require.True(t, ok)
	require.Equal(t, "key-2", kid)

	// Active resolver no longer knows the retired key.
	_, ok = ring.ResolveKey("key-1")
	require.False(t, ok)

	// The grace resolver still does, within the window.
	grace := ring.GraceResolver(time.Hour, time.Now)
	got, ok := grace.ResolveKey("key-1")
	require.True(t, ok)
	require.Equal(t, s1, got)

	// Beyond the window the retired key is gone.
	late := ring.GraceResolver(time.Hour, func() time.Time { return now.Add(2 * time.Hour) })
	_, ok = late.ResolveKey("key-1")
	require.False(t, ok)
}

func TestKeyringForgetDropsOldRetiredSecrets(t *testing.T) {
	t.Parallel()

	ring := jwtx.NewKeyring()
	now := time.Now()

	s1, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NoError(t, ring.SetActive(jwtx.UseAccess, "key-1", s1, now))
	s2, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NoError(t, ring.SetActive(jwtx.UseAccess, "key-2", s2, now))

	ring.Forget(time.Minute, now.Add(time.Hour))

	unbounded := ring.GraceResolver(24*time.Hour, func() time.Time { return now })
	_, ok := unbounded.ResolveKey("key-1")
	require.False(t, ok)

	// The active key survives Forget.
	_, ok = ring.ResolveKey("key-2")
	require.True(t, ok)
}

func TestKeyringActiveNeverEmptyDuringRotation(t *testing.T) {
	t.Parallel()

	ring := jwtx.NewKeyring()
	secret, err := cryptox.GenerateSecret(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NoError(t, ring.SetActive(jwtx.UseAccess, "key-0", secret, time.Now()))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Reader: once initialized, there must always be an active signer.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			signer, err := ring.ActiveSigner(jwtx.UseAccess)
			require.NoError(t, err)
			require.NotNil(t, signer)
		}
	}()

	// Writer: rotate repeatedly.
	for i := range 50 {
		s, err := cryptox.GenerateSecret(cryptox.TokenSize256)
		require.NoError(t, err)
		require.NoError(t, ring.SetActive(jwtx.UseAccess, "key-"+string(rune('a'+i%26))+"-rot", s, time.Now()))
	}

	close(stop)
	wg.Wait()
}
