package envelope

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// AWSKMSKEK wraps DEKs using an AWS KMS customer master key.
type AWSKMSKEK struct {
	client *kms.Client
	keyID  string
}

// NewAWSKMSKEK builds an AWSKMSKEK using the default AWS credential chain.
func NewAWSKMSKEK(ctx context.Context, region, keyID string) (*AWSKMSKEK, error) {
	if keyID == "" {
		return nil, fmt.Errorf("aws KMS KEK: no key ID configured (set KEK_KEY_NAME)")
	}

	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws KMS KEK: loading config: %w", err)
	}

	return &AWSKMSKEK{client: kms.NewFromConfig(cfg), keyID: keyID}, nil
}

func (k *AWSKMSKEK) EncryptDEK(ctx context.Context, plaintextDEK []byte) ([]byte, error) {
	out, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(k.keyID),
		Plaintext: plaintextDEK,
	})
	if err != nil {
		return nil, fmt.Errorf("aws KMS KEK: encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (k *AWSKMSKEK) DecryptDEK(ctx context.Context, encryptedDEK []byte) ([]byte, error) {
	out, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(k.keyID),
		CiphertextBlob: encryptedDEK,
	})
	if err != nil {
		return nil, fmt.Errorf("aws KMS KEK: decrypt (possibly tampered ciphertext): %w", err)
	}
	return out.Plaintext, nil
}
