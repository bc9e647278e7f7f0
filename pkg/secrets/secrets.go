// Package secrets encrypts integration credentials at rest and resolves them for step handlers.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowexec/pkg/models"
)

const keySize = 32

var (
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes")
	ErrMissingKey         = errors.New("either key or passphrase is required")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecrypt            = errors.New("failed to decrypt credentials")
)

// Config carries the key material. Key takes priority over Passphrase.
type Config struct {
	Key        []byte
	Passphrase string
	Salt       []byte
	Iterations int
}

// ParseKey decodes a 32 byte key given as hex or standard base64.
func ParseKey(encoded string) ([]byte, error) {
	if b, err := hex.DecodeString(encoded); err == nil && len(b) == keySize {
		return b, nil
	}

	if b, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(b) == keySize {
		return b, nil
	}

	return nil, ErrInvalidKey
}

func deriveKey(cfg Config) ([]byte, error) {
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != keySize {
			return nil, fmt.Errorf("%w, got %d", ErrInvalidKey, len(cfg.Key))
		}

		return cfg.Key, nil
	}

	if cfg.Passphrase == "" {
		return nil, ErrMissingKey
	}

	if len(cfg.Salt) == 0 {
		return nil, errors.New("salt is required with passphrase")
	}

	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}

	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, keySize)
}

// Cipher seals payloads with AES-256-GCM. Output layout is nonce || ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(cfg Config) (*Cipher, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := c.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}

	return plaintext, nil
}

// SealConfig encrypts an integration configuration.
func (c *Cipher) SealConfig(config map[string]string) ([]byte, error) {
	plaintext, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal integration config: %w", err)
	}

	return c.Encrypt(plaintext)
}

// OpenConfig decrypts a blob produced by SealConfig.
func (c *Cipher) OpenConfig(blob []byte) (map[string]string, error) {
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return nil, err
	}

	var config map[string]string
	if err := json.Unmarshal(plaintext, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal integration config: %w", err)
	}

	return config, nil
}

// IntegrationReader loads stored integrations.
type IntegrationReader interface {
	IntegrationByID(ctx context.Context, id string) (*models.Integration, error)
}

// CredentialStore resolves decrypted credentials for an integration id.
type CredentialStore struct {
	logger       *slog.Logger
	integrations IntegrationReader
	cipher       *Cipher
}

func NewCredentialStore(logger *slog.Logger, integrations IntegrationReader, cipher *Cipher) *CredentialStore {
	return &CredentialStore{
		logger:       logger.With("module", "credential_store"),
		integrations: integrations,
		cipher:       cipher,
	}
}

func (s *CredentialStore) FetchCredentials(ctx context.Context, integrationID string) (map[string]string, error) {
	integration, err := s.integrations.IntegrationByID(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration %s: %w", integrationID, err)
	}

	if integration == nil {
		return nil, fmt.Errorf("integration %s not found", integrationID)
	}

	config, err := s.cipher.OpenConfig(integration.Config)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to decrypt integration config",
			"integration_id", integrationID,
			"integration_type", integration.Type)

		return nil, fmt.Errorf("integration %s: %w", integrationID, err)
	}

	s.logger.DebugContext(ctx, "Resolved integration credentials",
		"integration_id", integrationID,
		"integration_type", integration.Type)

	return config, nil
}
