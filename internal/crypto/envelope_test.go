package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/wisbric/confcore/internal/apperr"
)

func testKeyB64() string {
	return base64.StdEncoding.EncodeToString([]byte("01234567890123456789012345678901"[:32]))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("active", testKeyB64(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	m := newTestManager(t)

	plaintext := "sk-super-secret-value"
	env, err := m.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := m.Decrypt(env)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	m := newTestManager(t)

	e1, err := m.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	e2, err := m.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	if e1 == e2 {
		t.Error("two encryptions of the same plaintext produced identical envelopes")
	}
}

func TestEnvelopeShape(t *testing.T) {
	m := newTestManager(t)
	env, err := m.Encrypt("x")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(env, ":")
	if len(parts) != 5 {
		t.Fatalf("envelope has %d fields, want 5: %s", len(parts), env)
	}
	if parts[0] != Scheme {
		t.Errorf("scheme = %q, want %q", parts[0], Scheme)
	}
	if parts[1] != "active" {
		t.Errorf("key_id = %q, want active", parts[1])
	}
}

func TestDecryptUnknownKey(t *testing.T) {
	m := newTestManager(t)
	env, err := m.Encrypt("x")
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewManager("other", base64.StdEncoding.EncodeToString([]byte("abcdefghijabcdefghijabcdefghijAB")), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = other.Decrypt(env)
	if !apperr.Is(err, apperr.KeyUnknown) {
		t.Errorf("expected KeyUnknown, got %v", err)
	}
}

func TestDecryptTamperDetected(t *testing.T) {
	m := newTestManager(t)
	env, err := m.Encrypt("x")
	if err != nil {
		t.Fatal(err)
	}

	tampered := env[:len(env)-2] + "zz"
	_, err = m.Decrypt(tampered)
	if err == nil {
		t.Fatal("expected an error decrypting a tampered envelope")
	}
	if !apperr.Is(err, apperr.TamperDetected) && !apperr.Is(err, apperr.KeyUnknown) {
		t.Errorf("expected TamperDetected or KeyUnknown, got %v", err)
	}
}

func TestRetiredKeyStillDecrypts(t *testing.T) {
	retiredB64 := base64.StdEncoding.EncodeToString([]byte("retiredretiredretiredretiredretA")[:32])
	old, err := NewManager("k1", retiredB64, nil)
	if err != nil {
		t.Fatal(err)
	}
	env, err := old.Encrypt("legacy secret")
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := NewManager("k2", testKeyB64(), map[string]string{"k1": retiredB64})
	if err != nil {
		t.Fatal(err)
	}

	got, err := rotated.Decrypt(env)
	if err != nil {
		t.Fatalf("retired key should still decrypt: %v", err)
	}
	if got != "legacy secret" {
		t.Errorf("got %q, want %q", got, "legacy secret")
	}

	// New encryptions use the active key, not the retired one.
	newEnv, err := rotated.Encrypt("fresh secret")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(newEnv, ":k2:") {
		t.Errorf("expected new envelope to use active key k2: %s", newEnv)
	}
}
