package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sealer encrypts and decrypts signing-secret material with AES-256-GCM
// under a master key. Secrets are stored sealed in the database so a process
// restart can recover the exact bytes, while the separate fingerprint column
// detects tampering.
//
// The master key is loaded once at construction; there is no package-level
// mutable state.
type Sealer struct {
	key []byte
}

// NewSealer derives a 32-byte AES-256 key from the contents of keyPath, or
// from the SITEPASS_MASTER_KEY environment variable when keyPath is empty.
// If neither source is available an ephemeral key is generated; sealed
// secrets then cannot be recovered after a restart, which is acceptable only
// for development.
func NewSealer(keyPath string) (*Sealer, error) {
	var material []byte

	switch {
	case keyPath != "":
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		material = data
	case os.Getenv("SITEPASS_MASTER_KEY") != "":
		material = []byte(os.Getenv("SITEPASS_MASTER_KEY"))
	default:
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
	}

	// Derive a fixed-length key regardless of input size.
	sum := sha256.Sum256(material)
	return &Sealer{key: sum[:]}, nil
}

// NewSealerFromKey builds a Sealer from explicit key material. Used in tests
// and when the key is injected by an external secret manager.
func NewSealerFromKey(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key material")
	}
	sum := sha256.Sum256(material)
	return &Sealer{key: sum[:]}, nil
}

// Seal encrypts plaintext. Output layout: [nonce][ciphertext+tag].
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal and verifies its authentication tag.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("cryptox: sealed data too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed secret: %w", err)
	}
	return plaintext, nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
