package crypto

import "testing"

func TestEncryptDecryptRoundtrip(t *testing.T) {
	cipher, err := NewCipher("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plaintext := `{"username": "user@example.com", "password": "secret"}`

	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("ciphertext must differ from plaintext")
	}

	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("expected roundtrip to preserve plaintext, got %q", decrypted)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	cipher1, _ := NewCipher("key-one")
	cipher2, _ := NewCipher("key-two")

	encrypted, err := cipher1.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if _, err := cipher2.Decrypt(encrypted); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	cipher, _ := NewCipher("test-key")

	if _, err := cipher.Decrypt("AAAA"); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
	if _, err := cipher.Decrypt("not base64 !!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestEmptyStringPassthrough(t *testing.T) {
	cipher, _ := NewCipher("test-key")

	encrypted, err := cipher.Encrypt("")
	if err != nil || encrypted != "" {
		t.Errorf("expected empty plaintext to stay empty, got %q, %v", encrypted, err)
	}
	decrypted, err := cipher.Decrypt("")
	if err != nil || decrypted != "" {
		t.Errorf("expected empty ciphertext to stay empty, got %q, %v", decrypted, err)
	}
}

func TestGenerateEncryptionKey(t *testing.T) {
	key, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("generated key must be usable: %v", err)
	}

	encrypted, err := cipher.Encrypt("check")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil || decrypted != "check" {
		t.Errorf("roundtrip with generated key failed: %q, %v", decrypted, err)
	}
}
