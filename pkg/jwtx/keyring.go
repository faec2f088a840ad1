package jwtx

import (
	"fmt"
	"sync"
	"time"
)

// Keyring is the process-local cache of signing-secret material. The durable
// store only holds sealed bytes and fingerprints; the keyring holds the
// usable material for the active secret per use plus recently retired
// secrets kept for verification during the grace window.
//
// All methods are safe for concurrent use. Rotation swaps the active entry
// under the write lock, so a concurrent ActiveSigner observes either the old
// or the new secret, never neither.
type Keyring struct {
	mu     sync.RWMutex
	active map[string]*Signer // use -> signer for the active secret
	known  map[string]entry   // key id -> material (active and retired)
}

type entry struct {
	secret    []byte
	use       string
	retiredAt *time.Time // nil while active
}

func NewKeyring() *Keyring {
	return &Keyring{
		active: make(map[string]*Signer),
		known:  make(map[string]entry),
	}
}

// SetActive installs a new active secret for the given use. Any previous
// active secret of that use is marked retired at the given time but remains
// resolvable for verification.
func (k *Keyring) SetActive(use, keyID string, secret []byte, now time.Time) error {
	signer, err := NewSigner(keyID, secret)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if prev, ok := k.active[use]; ok && prev.KeyID() != keyID {
		if e, ok := k.known[prev.KeyID()]; ok {
			at := now
			e.retiredAt = &at
			k.known[prev.KeyID()] = e
		}
	}

	k.active[use] = signer
	k.known[keyID] = entry{secret: secret, use: use}
	return nil
}

// ActiveSigner returns the signer for the active secret of the given use.
func (k *Keyring) ActiveSigner(use string) (*Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	signer, ok := k.active[use]
	if !ok {
		return nil, fmt.Errorf("jwtx: no active secret for use %q", use)
	}
	return signer, nil
}

// ActiveKeyID returns the key id of the active secret for the given use.
func (k *Keyring) ActiveKeyID(use string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	signer, ok := k.active[use]
	if !ok {
		return "", false
	}
	return signer.KeyID(), true
}

// ResolveKey implements KeyResolver for active secrets only; retired secrets
// are resolved through GraceResolver so the grace window stays enforced.
func (k *Keyring) ResolveKey(keyID string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	e, ok := k.known[keyID]
	if !ok || e.retiredAt != nil {
		return nil, false
	}
	return e.secret, true
}

// GraceResolver returns a KeyResolver that also accepts secrets retired no
// earlier than the grace window before now.
func (k *Keyring) GraceResolver(grace time.Duration, now func() time.Time) KeyResolver {
	return graceResolver{ring: k, grace: grace, now: now}
}

type graceResolver struct {
	ring  *Keyring
	grace time.Duration
	now   func() time.Time
}

func (g graceResolver) ResolveKey(keyID string) ([]byte, bool) {
	g.ring.mu.RLock()
	defer g.ring.mu.RUnlock()

	e, ok := g.ring.known[keyID]
	if !ok {
		return nil, false
	}
	if e.retiredAt != nil && g.now().Sub(*e.retiredAt) > g.grace {
		return nil, false
	}
	return e.secret, true
}

// Forget drops secrets retired longer ago than keepFor. Housekeeping calls
// this so the keyring does not grow without bound across rotations.
func (k *Keyring) Forget(keepFor time.Duration, now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for keyID, e := range k.known {
		if e.retiredAt != nil && now.Sub(*e.retiredAt) > keepFor {
			delete(k.known, keyID)
		}
	}
}
