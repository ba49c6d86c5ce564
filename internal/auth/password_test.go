package auth

import (
	"errors"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("admin123456")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "admin123456" {
		t.Fatal("HashPassword() returned the plaintext")
	}
	if !CheckPassword(hash, "admin123456") {
		t.Error("CheckPassword() = false for correct password")
	}
	if CheckPassword(hash, "admin1234567") {
		t.Error("CheckPassword() = true for wrong password")
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("HashPassword(short) err = %v, want ErrPasswordTooShort", err)
	}
}

func TestCheckPassword_EmptyOrCorruptHash(t *testing.T) {
	if CheckPassword("", "anything") {
		t.Error("CheckPassword(\"\") = true, want false")
	}
	if CheckPassword("not-a-bcrypt-hash", "anything") {
		t.Error("CheckPassword(corrupt) = true, want false")
	}
}
