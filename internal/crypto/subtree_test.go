package crypto

import "testing"

func TestEncryptDecryptSubtreeFidelity(t *testing.T) {
	m := newTestManager(t)
	isSensitive := NewSensitivePredicate(nil)

	original := map[string]any{
		"model": map[string]any{
			"name": "gpt-9",
		},
		"api_key": "sk-abc123",
		"tags":    []any{"prod", "sre"},
		"nested": map[string]any{
			"password": "hunter2",
			"webhooks": []any{"https://a", "https://b"},
		},
	}

	encrypted, err := m.EncryptSubtree(original, isSensitive)
	if err != nil {
		t.Fatalf("EncryptSubtree: %v", err)
	}

	if encrypted["api_key"] == original["api_key"] {
		t.Error("api_key should have been encrypted")
	}
	if encrypted["model"].(map[string]any)["name"] != "gpt-9" {
		t.Error("non-sensitive nested field should pass through unchanged")
	}
	nested := encrypted["nested"].(map[string]any)
	if nested["password"] == "hunter2" {
		t.Error("password should have been encrypted")
	}

	decrypted, err := m.DecryptSubtree(encrypted)
	if err != nil {
		t.Fatalf("DecryptSubtree: %v", err)
	}

	if decrypted["api_key"] != "sk-abc123" {
		t.Errorf("api_key round-trip = %v, want sk-abc123", decrypted["api_key"])
	}
	if decrypted["nested"].(map[string]any)["password"] != "hunter2" {
		t.Errorf("password round-trip mismatch")
	}
}

func TestEncryptSubtreeArrayOfScalarsUnderSensitiveKey(t *testing.T) {
	m := newTestManager(t)
	isSensitive := NewSensitivePredicate(nil)

	original := map[string]any{
		"secret": []any{"one", "two", "three"},
	}

	encrypted, err := m.EncryptSubtree(original, isSensitive)
	if err != nil {
		t.Fatal(err)
	}

	arr := encrypted["secret"].([]any)
	for i, v := range arr {
		s, ok := v.(string)
		if !ok || !IsEnvelope(s) {
			t.Errorf("element %d not encrypted: %v", i, v)
		}
	}

	decrypted, err := m.DecryptSubtree(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	got := decrypted["secret"].([]any)
	want := []string{"one", "two", "three"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("element %d = %v, want %v", i, got[i], w)
		}
	}
}

func TestSensitivePredicateCaseInsensitive(t *testing.T) {
	isSensitive := NewSensitivePredicate([]string{"API_KEY"})
	if !isSensitive("api_key") {
		t.Error("expected case-insensitive match")
	}
	if isSensitive("other") {
		t.Error("unexpected match")
	}
}

func TestSensitivePredicateDefaultsWhenEmpty(t *testing.T) {
	isSensitive := NewSensitivePredicate(nil)
	for _, k := range []string{"api_key", "bot_token", "client_secret", "password", "token", "webhook_url", "secret", "access_key", "private_key"} {
		if !isSensitive(k) {
			t.Errorf("expected default predicate to match %q", k)
		}
	}
	if isSensitive("name") {
		t.Error("did not expect name to match")
	}
}
