package cmd

import (
	"fmt"

	"github.com/dukex/flowexec/pkg/secrets"
)

// NewCipher builds the credential cipher from an encoded key or a passphrase with salt.
// It returns nil without error when neither is set; integrations are then unavailable.
func NewCipher(encodedKey, passphrase, salt string) (*secrets.Cipher, error) {
	cfg := secrets.Config{Passphrase: passphrase, Salt: []byte(salt)}

	if encodedKey != "" {
		key, err := secrets.ParseKey(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}

		cfg.Key = key
	}

	if len(cfg.Key) == 0 && cfg.Passphrase == "" {
		return nil, nil
	}

	return secrets.NewCipher(cfg)
}
