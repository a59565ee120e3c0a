package security

import (
	"bytes"
	"testing"
)

func TestSecretBox_SealAndOpen(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}
	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "JBSWY3DPEHPK3PXP" {
		t.Errorf("Open: got %q", opened)
	}
}

func TestSecretBox_OpenRejectsTampering(t *testing.T) {
	box, _ := NewSecretBox(bytes.Repeat([]byte("k"), 32))
	sealed, _ := box.Seal("secret")
	if _, err := box.Open("x" + sealed[1:]); err != ErrDecrypt {
		t.Errorf("tampered ciphertext: want ErrDecrypt, got %v", err)
	}
	if _, err := box.Open("%%%"); err != ErrDecrypt {
		t.Errorf("garbage ciphertext: want ErrDecrypt, got %v", err)
	}
}

func TestSecretBox_BadKeyLength(t *testing.T) {
	if _, err := NewSecretBox([]byte("short")); err == nil {
		t.Fatal("NewSecretBox should reject short keys")
	}
}
