package ledger

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar names the env var holding the ledger encryption
	// key. When unset the ledger is stored in the clear.
	EncryptionKeyEnvVar = "SUBFORGE_LEDGER_ENCRYPTION_KEY"

	// First line of an encrypted ledger file.
	encryptedHeader = "# SUBFORGE_ENCRYPTED_LEDGER\n"
)

// Encrypt seals ledger content with AES-256-GCM under the configured key.
// Without a key the content passes through unchanged, so encryption can be
// turned on per environment without touching the backends.
func Encrypt(content []byte) ([]byte, error) {
	key := encryptionKey()
	if key == nil {
		return content, nil
	}

	gcm, err := gcmFor(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, content, nil)
	return []byte(encryptedHeader + base64.StdEncoding.EncodeToString(sealed) + "\n"), nil
}

// Decrypt opens encrypted ledger content. Unencrypted content passes through,
// so a ledger written before the key was configured still reads cleanly.
func Decrypt(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	key := encryptionKey()
	if key == nil {
		return nil, fmt.Errorf("ledger is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	encoded := strings.TrimSpace(strings.TrimPrefix(string(content), encryptedHeader))
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("encrypted ledger is not valid base64: %w", err)
	}

	gcm, err := gcmFor(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted ledger is truncated")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger decryption failed, check %s: %w", EncryptionKeyEnvVar, err)
	}
	return plain, nil
}

// IsEncrypted reports whether content carries the encrypted ledger header.
func IsEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeader)
}

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger cipher: %w", err)
	}
	return gcm, nil
}

// encryptionKey derives the 32-byte AES key from the environment, or nil when
// encryption is off. Shorter values are zero-padded, longer ones truncated.
func encryptionKey() []byte {
	raw := os.Getenv(EncryptionKeyEnvVar)
	if raw == "" {
		return nil
	}
	key := make([]byte, 32)
	copy(key, raw)
	return key
}
