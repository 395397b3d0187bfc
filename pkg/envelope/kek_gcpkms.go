package envelope

import (
	"context"
	"encoding/base64"
	"fmt"

	cloudkms "google.golang.org/api/cloudkms/v1"
)

// GCPKMSKEK wraps DEKs using a Cloud KMS CryptoKey. keyName has the form
// "projects/P/locations/L/keyRings/R/cryptoKeys/K".
type GCPKMSKEK struct {
	svc     *cloudkms.Service
	keyName string
}

// NewGCPKMSKEK builds a GCPKMSKEK using application-default credentials.
func NewGCPKMSKEK(ctx context.Context, keyName string) (*GCPKMSKEK, error) {
	if keyName == "" {
		return nil, fmt.Errorf("gcp KMS KEK: no key name configured (set KEK_KEY_NAME)")
	}

	svc, err := cloudkms.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcp KMS KEK: building client: %w", err)
	}

	return &GCPKMSKEK{svc: svc, keyName: keyName}, nil
}

func (k *GCPKMSKEK) EncryptDEK(ctx context.Context, plaintextDEK []byte) ([]byte, error) {
	req := &cloudkms.EncryptRequest{
		Plaintext: base64.StdEncoding.EncodeToString(plaintextDEK),
	}

	resp, err := k.svc.Projects.Locations.KeyRings.CryptoKeys.Encrypt(k.keyName, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gcp KMS KEK: encrypt: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(resp.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("gcp KMS KEK: decoding ciphertext: %w", err)
	}
	return ciphertext, nil
}

func (k *GCPKMSKEK) DecryptDEK(ctx context.Context, encryptedDEK []byte) ([]byte, error) {
	req := &cloudkms.DecryptRequest{
		Ciphertext: base64.StdEncoding.EncodeToString(encryptedDEK),
	}

	resp, err := k.svc.Projects.Locations.KeyRings.CryptoKeys.Decrypt(k.keyName, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gcp KMS KEK: decrypt (possibly tampered ciphertext): %w", err)
	}

	plaintext, err := base64.StdEncoding.DecodeString(resp.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("gcp KMS KEK: decoding plaintext: %w", err)
	}
	return plaintext, nil
}
