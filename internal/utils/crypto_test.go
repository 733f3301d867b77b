package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	SetEncryptionKeyForTest(bytes.Repeat([]byte{0x42}, 32))

	secrets := []string{"+22501020304", "", "Compte Wave Moussa 07 89 01 23"}
	for _, secret := range secrets {
		enc, err := EncryptSecret(secret)
		if err != nil {
			t.Fatalf("EncryptSecret(%q): %v", secret, err)
		}
		if enc == secret && secret != "" {
			t.Errorf("ciphertext equals plaintext for %q", secret)
		}
		got, err := DecryptSecret(enc)
		if err != nil {
			t.Fatalf("DecryptSecret: %v", err)
		}
		if got != secret {
			t.Errorf("round trip = %q, want %q", got, secret)
		}
	}

	// The nonce is random, so two encryptions of the same secret differ.
	a, _ := EncryptSecret("+22501020304")
	b, _ := EncryptSecret("+22501020304")
	if a == b {
		t.Error("two encryptions produced identical ciphertexts")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	SetEncryptionKeyForTest(bytes.Repeat([]byte{0x42}, 32))

	enc, err := EncryptSecret("+22501020304")
	if err != nil {
		t.Fatal(err)
	}

	// Flip a hex character at the tail of the ciphertext.
	tail := enc[len(enc)-1]
	flipped := "0"
	if tail == '0' {
		flipped = "1"
	}
	tampered := enc[:len(enc)-1] + flipped
	if _, err := DecryptSecret(tampered); err == nil {
		t.Error("tampered ciphertext decrypted without error")
	}

	if _, err := DecryptSecret("zz-not-hex"); err == nil {
		t.Error("non-hex ciphertext decrypted without error")
	}
	if _, err := DecryptSecret("00ff"); err == nil {
		t.Error("ciphertext shorter than the nonce decrypted without error")
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	SetEncryptionKeyForTest(bytes.Repeat([]byte{0x42}, 32))
	enc, err := EncryptSecret("+22501020304")
	if err != nil {
		t.Fatal(err)
	}

	SetEncryptionKeyForTest(bytes.Repeat([]byte{0x43}, 32))
	defer SetEncryptionKeyForTest(bytes.Repeat([]byte{0x42}, 32))
	if _, err := DecryptSecret(enc); err == nil || !strings.Contains(err.Error(), "decrypting secret") {
		t.Errorf("wrong key: err = %v, want decryption failure", err)
	}
}

func TestCryptoRequiresInitializedKey(t *testing.T) {
	SetEncryptionKeyForTest(nil)
	defer SetEncryptionKeyForTest(bytes.Repeat([]byte{0x42}, 32))

	if _, err := EncryptSecret("x"); err == nil {
		t.Error("EncryptSecret succeeded without a key")
	}
	if _, err := DecryptSecret("00"); err == nil {
		t.Error("DecryptSecret succeeded without a key")
	}
}
