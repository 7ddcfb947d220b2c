package credential

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword_neverStoresPlaintext(t *testing.T) {
	hash, err := HashPassword("Abc123!@")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "Abc123!@" || strings.Contains(hash, "Abc123!@") {
		t.Fatalf("hash must not contain the plaintext: %q", hash)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("expected a bcrypt hash, got %q", hash)
	}
}

func TestHashPassword_randomSalt(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHashPassword_empty(t *testing.T) {
	if _, err := HashPassword(""); err != ErrEmptyPassword {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestHashPassword_tooLong(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("72 bytes should hash: %v", err)
	}
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("Abc123!@")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !ComparePassword(hash, "Abc123!@") {
		t.Error("correct password should match")
	}
	if ComparePassword(hash, "abc123!@") {
		t.Error("wrong password should not match")
	}
	if ComparePassword("", "Abc123!@") {
		t.Error("empty hash should never match")
	}
	if ComparePassword("not-a-bcrypt-hash", "Abc123!@") {
		t.Error("malformed hash should never match")
	}
}
