package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestRandomSecret(t *testing.T) {
	s1, err := RandomSecret(DefaultSecretLength)
	if err != nil {
		t.Fatal(err)
	}
	if len(s1) != DefaultSecretLength {
		t.Fatalf("expected length %d, got %d", DefaultSecretLength, len(s1))
	}
	for _, r := range s1 {
		if !strings.ContainsRune(secretAlphabet, r) {
			t.Fatalf("unexpected character %q in %q", r, s1)
		}
	}

	s2, _ := RandomSecret(32)
	s3, _ := RandomSecret(32)
	if s2 == s3 {
		t.Fatal("secrets should differ")
	}
}

func TestRandomSecretInvalidLength(t *testing.T) {
	if _, err := RandomSecret(0); !errors.Is(err, ErrInvalidSecretLength) {
		t.Fatalf("expected ErrInvalidSecretLength, got %v", err)
	}
}

func TestSecretsEqual(t *testing.T) {
	if !SecretsEqual("s1", "s1") {
		t.Fatal("identical secrets should match")
	}
	if SecretsEqual("S1", "s1") {
		t.Fatal("comparison must be case-sensitive")
	}
	if SecretsEqual("s1x", "s1") {
		t.Fatal("longer secret must not match")
	}
	if SecretsEqual("", "") {
		t.Fatal("blank configured secret must never match")
	}
}
