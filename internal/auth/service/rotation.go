package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/idx"
	"github.com/sitepass/sitepass/pkg/jwtx"
)

// RotationService owns the signing secret lifecycle: startup recovery,
// manual and scheduled rotation, and keeping the in-memory keyring in
// sync with the persisted secret set.
//
// Rotation replaces the access and refresh secrets together in a single
// transaction, so a failure partway leaves the previous generation fully
// active. Old secrets stay usable for verification during the grace
// window, then age out of the keyring.
type RotationService struct {
	Store   store.Store
	Sealer  *cryptox.Sealer
	Keyring *jwtx.Keyring

	// SecretBytes is the entropy of each generated secret. Values below
	// 32 are rejected by the signer; 64 is the default.
	SecretBytes int

	// Now is a clock hook for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *RotationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *RotationService) secretBytes() int {
	if s.SecretBytes > 0 {
		return s.SecretBytes
	}
	return 64
}

// RotateResult reports the keys minted by a rotation pass.
type RotateResult struct {
	RotatedAt time.Time         `json:"rotated_at"`
	KeyIDs    map[string]string `json:"key_ids"` // secret type -> new key id
}

// Rotate mints a fresh secret for every type and swaps them in atomically:
// both deactivations and both inserts share one transaction. The keyring
// is updated only after the transaction commits, so verification never
// observes a half-rotated state.
func (s *RotationService) Rotate(ctx context.Context) (*RotateResult, error) {
	return s.rotateTypes(ctx, domain.SecretTypes)
}

// rotateTypes rotates only the given types. Startup recovery uses this to
// mint a missing type without retiring the other type's healthy secret.
func (s *RotationService) rotateTypes(ctx context.Context, types []domain.SecretType) (*RotateResult, error) {
	now := s.now()

	type minted struct {
		typ    domain.SecretType
		keyID  string
		secret []byte
	}

	mintedSecrets := make([]minted, 0, len(types))
	for _, typ := range types {
		secret, err := cryptox.GenerateSecret(s.secretBytes())
		if err != nil {
			return nil, fmt.Errorf("generate %s secret: %w", typ, err)
		}
		keyID, err := generateKeyID()
		if err != nil {
			return nil, err
		}
		mintedSecrets = append(mintedSecrets, minted{typ: typ, keyID: keyID, secret: secret})
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, m := range mintedSecrets {
			if err := tx.SigningSecrets().DeactivateActiveSigningSecrets(ctx, m.typ, now); err != nil {
				return fmt.Errorf("deactivate %s secrets: %w", m.typ, err)
			}

			sealed, err := s.Sealer.Seal(m.secret)
			if err != nil {
				return fmt.Errorf("seal %s secret: %w", m.typ, err)
			}

			record := domain.SigningSecret{
				ID:           idx.New().String(),
				KeyID:        m.keyID,
				Type:         m.typ,
				SecretSealed: sealed,
				SecretHash:   cryptox.FingerprintBytes(m.secret),
				IsActive:     true,
				CreatedAt:    now,
			}
			if err := tx.SigningSecrets().CreateSigningSecret(ctx, record); err != nil {
				return fmt.Errorf("store %s secret: %w", m.typ, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RotateResult{RotatedAt: now, KeyIDs: make(map[string]string, len(mintedSecrets))}
	for _, m := range mintedSecrets {
		if err := s.Keyring.SetActive(string(m.typ), m.keyID, m.secret, now); err != nil {
			return nil, fmt.Errorf("activate %s signer: %w", m.typ, err)
		}
		result.KeyIDs[string(m.typ)] = m.keyID
	}

	slog.Info("signing secrets rotated", "key_ids", result.KeyIDs)
	return result, nil
}

// InitializeOnStartup restores the keyring from the persisted secret set.
// Secrets are stored sealed under the master key, so a restart recovers
// the prior generation instead of forcing a rotation. Types with no
// active secret at all get a fresh one minted; types that already have
// one are left untouched.
func (s *RotationService) InitializeOnStartup(ctx context.Context) error {
	active, err := s.Store.SigningSecrets().ListActiveSigningSecrets(ctx)
	if err != nil {
		return fmt.Errorf("list active secrets: %w", err)
	}

	loaded := make(map[domain.SecretType]bool, len(domain.SecretTypes))
	for _, record := range active {
		secret, err := s.Sealer.Open(record.SecretSealed)
		if err != nil {
			return fmt.Errorf("unseal secret %s: %w", record.KeyID, err)
		}
		if cryptox.FingerprintBytes(secret) != record.SecretHash {
			return fmt.Errorf("secret %s failed integrity check", record.KeyID)
		}
		if err := s.Keyring.SetActive(string(record.Type), record.KeyID, secret, record.CreatedAt); err != nil {
			return fmt.Errorf("load %s signer: %w", record.Type, err)
		}
		loaded[record.Type] = true
	}

	var missing []domain.SecretType
	for _, typ := range domain.SecretTypes {
		if !loaded[typ] {
			missing = append(missing, typ)
		}
	}
	if len(missing) > 0 {
		slog.Info("no active signing secret found, rotating", "types", missing)
		_, err := s.rotateTypes(ctx, missing)
		return err
	}

	slog.Info("signing secrets restored", "count", len(active))
	return nil
}

// LookupRetired fetches a non-active secret by key id and unseals it. The
// token verifier falls back to this when a token carries a key id the
// keyring no longer holds, subject to the grace window check.
func (s *RotationService) LookupRetired(ctx context.Context, keyID string) (domain.SigningSecret, []byte, error) {
	record, err := s.Store.SigningSecrets().GetSigningSecretByKeyID(ctx, keyID)
	if err != nil {
		return domain.SigningSecret{}, nil, err
	}
	secret, err := s.Sealer.Open(record.SecretSealed)
	if err != nil {
		return domain.SigningSecret{}, nil, fmt.Errorf("unseal secret %s: %w", keyID, err)
	}
	if cryptox.FingerprintBytes(secret) != record.SecretHash {
		return domain.SigningSecret{}, nil, fmt.Errorf("secret %s failed integrity check", keyID)
	}
	return record, secret, nil
}

func generateKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	return fmt.Sprintf("sp-%s", token), nil
}
