package envelope

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrTampered is returned when ciphertext fails AEAD authentication — it is
// distinguished from other failures so callers can alert on it rather than
// treat it as an ordinary not-found or transient error.
var ErrTampered = errors.New("envelope: ciphertext authentication failed (tampered or wrong DEK)")

// Cipher provides authenticated encryption of short UTF-8 strings under
// per-record DEKs, themselves wrapped by a KEKProvider.
type Cipher struct {
	kek   KEKProvider
	cache *dekCache
}

// NewCipher builds a Cipher backed by the given KEK provider.
func NewCipher(kek KEKProvider) *Cipher {
	return &Cipher{kek: kek, cache: newDEKCache()}
}

// GenerateDEK produces a fresh 256-bit DEK, wraps it under the KEK, and
// caches the plaintext form keyed by its wrapped bytes.
func (c *Cipher) GenerateDEK(ctx context.Context) (encryptedDEK, plaintextDEK []byte, err error) {
	plaintextDEK = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(plaintextDEK); err != nil {
		return nil, nil, fmt.Errorf("envelope: generating DEK: %w", err)
	}

	encryptedDEK, err = c.kek.EncryptDEK(ctx, plaintextDEK)
	if err != nil {
		return nil, nil, fmt.Errorf("envelope: wrapping DEK: %w", err)
	}

	c.cache.put(encryptedDEK, plaintextDEK)
	return encryptedDEK, plaintextDEK, nil
}

// Encrypt AEAD-encrypts plaintext under the DEK identified by encryptedDEK,
// using a fresh random nonce each call. The returned string is
// base64-free raw bytes encoded by the caller's storage layer (callers in
// this repo pass the result straight to a bytea column); it is nonce||ct.
func (c *Cipher) Encrypt(ctx context.Context, plaintext string, encryptedDEK []byte) ([]byte, error) {
	aead, err := c.aeadFor(ctx, encryptedDEK)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("envelope: generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return append(nonce, sealed...), nil
}

// Decrypt reverses Encrypt. It returns ErrTampered if the ciphertext fails
// authentication under the unwrapped DEK.
func (c *Cipher) Decrypt(ctx context.Context, ciphertext, encryptedDEK []byte) (string, error) {
	aead, err := c.aeadFor(ctx, encryptedDEK)
	if err != nil {
		return "", err
	}

	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrTampered
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrTampered
	}
	return string(plaintext), nil
}

func (c *Cipher) aeadFor(ctx context.Context, encryptedDEK []byte) (cipherAEAD, error) {
	plaintextDEK, ok := c.cache.get(encryptedDEK)
	if !ok {
		var err error
		plaintextDEK, err = c.kek.DecryptDEK(ctx, encryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("envelope: unwrapping DEK: %w", err)
		}
		c.cache.put(encryptedDEK, plaintextDEK)
	}

	aead, err := chacha20poly1305.New(plaintextDEK)
	if err != nil {
		return nil, fmt.Errorf("envelope: constructing AEAD from DEK: %w", err)
	}
	return aead, nil
}
