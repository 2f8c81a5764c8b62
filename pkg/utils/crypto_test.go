package utils

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	plaintext := "IGQWRPc2Vyc0FjY2Vzc1Rva2Vu"

	encrypted, err := Encrypt([]byte(plaintext), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(encrypted, plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	a, err := Encrypt([]byte("same input"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := Encrypt([]byte("same input"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same input produced the same ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")

	encrypted, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(encrypted, other); err == nil {
		t.Error("decryption with the wrong key succeeded")
	}
}

func TestDecryptTruncatedCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	if _, err := Decrypt("AAAA", key); err == nil {
		t.Error("expected error for ciphertext shorter than the nonce")
	}
}

func TestEncryptBadKeyLength(t *testing.T) {
	if _, err := Encrypt([]byte("data"), []byte("short")); err == nil {
		t.Error("expected error for invalid key length")
	}
}
