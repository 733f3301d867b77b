package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
)

// encryptionKey stores the global encryption key for payout destinations
// (mobile-money numbers). Initialized by InitEncryptionKey().
var encryptionKey []byte

// InitEncryptionKey loads the AES-256 key from PAYOUT_ENCRYPTION_KEY_HEX
// (32 bytes, 64 hex characters). Call once at startup.
func InitEncryptionKey() error {
	keyHex := os.Getenv("PAYOUT_ENCRYPTION_KEY_HEX")
	if keyHex == "" {
		log.Println("CRITICAL: PAYOUT_ENCRYPTION_KEY_HEX is not set; withdrawal destinations cannot be stored.")
		return fmt.Errorf("PAYOUT_ENCRYPTION_KEY_HEX is not set")
	}

	var err error
	encryptionKey, err = hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("PAYOUT_ENCRYPTION_KEY_HEX is not valid hex: %w", err)
	}
	if len(encryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes (64 hex characters), got %d bytes", len(encryptionKey))
	}
	log.Println("Encryption key initialized.")
	return nil
}

// SetEncryptionKeyForTest installs a key directly, bypassing the
// environment. Test helper.
func SetEncryptionKeyForTest(key []byte) { encryptionKey = key }

// EncryptSecret encrypts a plaintext secret (a payout destination number)
// with AES-256-GCM and returns the hex-encoded ciphertext.
func EncryptSecret(plainText string) (string, error) {
	if len(encryptionKey) == 0 {
		return "", fmt.Errorf("encryption key not initialized")
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	// Never use more than 2^32 random nonces with a given key because of the risk of a repeat.
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Seal prepends the nonce to the ciphertext.
	cipherText := gcm.Seal(nonce, nonce, []byte(plainText), nil)
	return hex.EncodeToString(cipherText), nil
}

// DecryptSecret decrypts a hex-encoded AES-256-GCM ciphertext produced by
// EncryptSecret.
func DecryptSecret(cipherTextHex string) (string, error) {
	if len(encryptionKey) == 0 {
		return "", fmt.Errorf("encryption key not initialized")
	}

	cipherText, err := hex.DecodeString(cipherTextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext hex: %w", err)
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}
	if len(cipherText) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, actual := cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():]
	plainText, err := gcm.Open(nil, nonce, actual, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting secret (wrong key or corrupted data): %w", err)
	}
	return string(plainText), nil
}
