// Package envelope implements envelope encryption of short secrets: a
// per-record 256-bit data-encryption key (DEK) wraps the plaintext with
// ChaCha20-Poly1305, and the DEK itself is wrapped under a key-encryption key (KEK)
// whose material lives outside the process.
package envelope

import "context"

// KEKProvider wraps and unwraps data-encryption keys under a master key.
// The KMS-backed providers keep that key outside the process; LocalKEK
// holds its key in memory for its lifetime. Each concrete provider corresponds to one of the three
// supported KEK backends (local, GCP KMS, AWS KMS).
type KEKProvider interface {
	// EncryptDEK wraps a raw 32-byte DEK for storage.
	EncryptDEK(ctx context.Context, plaintextDEK []byte) ([]byte, error)
	// DecryptDEK unwraps a previously-wrapped DEK.
	DecryptDEK(ctx context.Context, encryptedDEK []byte) ([]byte, error)
}
