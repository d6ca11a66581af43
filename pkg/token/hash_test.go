package token

import (
	"bytes"
	"testing"
)

func TestGenerateSecretIsUnpredictable(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two generated secrets were identical")
	}
	if len(a) == 0 {
		t.Error("expected a non-empty secret")
	}
}

func TestHashIsDeterministicAndPeppered(t *testing.T) {
	h1 := Hash("pepper-one-that-is-long-enough-abc", "secret")
	h2 := Hash("pepper-one-that-is-long-enough-abc", "secret")
	if !bytes.Equal(h1, h2) {
		t.Error("same pepper+secret should hash identically")
	}

	h3 := Hash("a-different-pepper-value-long-eno", "secret")
	if bytes.Equal(h1, h3) {
		t.Error("different peppers should produce different hashes for the same secret")
	}
}

func TestHashNeverEqualsPlaintext(t *testing.T) {
	secret := "plaintext-secret"
	h := Hash("pepper-value-that-is-long-enough!!", secret)
	if string(h) == secret {
		t.Error("hash must never equal the plaintext secret")
	}
}
