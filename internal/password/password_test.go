package password

import (
	"errors"
	"testing"
)

func TestHashAndMatches(t *testing.T) {
	hash, err := Hash("P@ss1word")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "P@ss1word" {
		t.Fatal("hash must not equal the plaintext")
	}

	ok, err := Matches("P@ss1word", hash)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if !ok {
		t.Fatal("correct password must match")
	}

	ok, err = Matches("wrong", hash)
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not match")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, _ := Hash("P@ss1word")
	h2, _ := Hash("P@ss1word")
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestMatchesCorruptHash(t *testing.T) {
	if _, err := Matches("anything", "not-a-bcrypt-hash"); !errors.Is(err, ErrCorruptHash) {
		t.Fatalf("expected ErrCorruptHash, got %v", err)
	}
	if _, err := Matches("anything", ""); !errors.Is(err, ErrCorruptHash) {
		t.Fatalf("expected ErrCorruptHash for empty hash, got %v", err)
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	if _, err := Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
