package envelope

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// LocalKEK wraps DEKs under a single symmetric key passed in as a base64
// string (the KEK_LOCAL_KEY env var), for self-hosted or development
// deployments that do not have a cloud KMS available. Reading the key
// from a file is not supported.
type LocalKEK struct {
	aead cipherAEAD
}

// NewLocalKEK builds a LocalKEK from a base64-encoded 32-byte key.
func NewLocalKEK(base64Key string) (*LocalKEK, error) {
	if base64Key == "" {
		return nil, errors.New("local KEK: no key configured (set KEK_LOCAL_KEY)")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("local KEK: decoding key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("local KEK: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("local KEK: constructing AEAD: %w", err)
	}

	return &LocalKEK{aead: aead}, nil
}

func (k *LocalKEK) EncryptDEK(_ context.Context, plaintextDEK []byte) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("local KEK: generating nonce: %w", err)
	}
	sealed := k.aead.Seal(nil, nonce, plaintextDEK, nil)
	return append(nonce, sealed...), nil
}

func (k *LocalKEK) DecryptDEK(_ context.Context, encryptedDEK []byte) ([]byte, error) {
	nonceSize := k.aead.NonceSize()
	if len(encryptedDEK) < nonceSize {
		return nil, errors.New("local KEK: ciphertext too short")
	}
	nonce, ct := encryptedDEK[:nonceSize], encryptedDEK[nonceSize:]
	plaintext, err := k.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("local KEK: unwrap failed (tampered or wrong key): %w", err)
	}
	return plaintext, nil
}

// cipherAEAD is the subset of cipher.AEAD used by LocalKEK and Cipher.
type cipherAEAD interface {
	NonceSize() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}
