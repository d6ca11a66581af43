package crypto

import (
	"strconv"
	"strings"
)

// defaultSensitiveKeys is the default sensitive-key set: a case-insensitive
// exact match against a JSON object key.
var defaultSensitiveKeys = []string{
	"api_key", "bot_token", "client_secret", "password", "token",
	"webhook_url", "secret", "access_key", "private_key",
}

// SensitivePredicate reports whether a given object key should be treated
// as sensitive and therefore encrypted at rest.
type SensitivePredicate func(key string) bool

// NewSensitivePredicate builds a predicate from a configured set of keys,
// matched case-insensitively. An empty set falls back to the default set
// documented in the component contract.
func NewSensitivePredicate(keys []string) SensitivePredicate {
	if len(keys) == 0 {
		keys = defaultSensitiveKeys
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return func(key string) bool {
		_, ok := set[strings.ToLower(key)]
		return ok
	}
}

// EncryptSubtree recursively walks obj, replacing scalar values at keys
// matched by isSensitive with an encryption envelope. Non-sensitive keys
// pass through unchanged; nested objects recurse; arrays of scalars under a
// sensitive key are encrypted element-wise, arrays under a non-sensitive
// key are walked element-wise when their elements are objects.
func (m *Manager) EncryptSubtree(obj map[string]any, isSensitive SensitivePredicate) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		nv, err := m.encryptValue(k, v, isSensitive)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func (m *Manager) encryptValue(key string, v any, isSensitive SensitivePredicate) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return m.EncryptSubtree(val, isSensitive)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			if _, isObj := elem.(map[string]any); isObj {
				nv, err := m.encryptValue(key, elem, isSensitive)
				if err != nil {
					return nil, err
				}
				out[i] = nv
				continue
			}
			if isSensitive(key) {
				scalarStr, err := m.encryptScalar(elem)
				if err != nil {
					return nil, err
				}
				out[i] = scalarStr
				continue
			}
			out[i] = elem
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		if isSensitive(key) {
			return m.encryptScalar(val)
		}
		return val, nil
	}
}

func (m *Manager) encryptScalar(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		s = scalarToString(v)
	}
	return m.Encrypt(s)
}

// RekeyValue re-encrypts a single envelope string under the active key if
// it isn't already, reporting whether a change was made. Used for scalar
// encrypted fields outside of a config subtree (e.g. SSOConfig.ClientSecret).
func (m *Manager) RekeyValue(s string) (string, bool, error) {
	if !IsEnvelope(s) {
		return s, false, nil
	}
	env, err := ParseEnvelope(s)
	if err != nil {
		return "", false, err
	}
	if env.KeyID == m.active.ID {
		return s, false, nil
	}
	plaintext, err := m.Decrypt(s)
	if err != nil {
		return "", false, err
	}
	reencrypted, err := m.Encrypt(plaintext)
	if err != nil {
		return "", false, err
	}
	return reencrypted, true, nil
}

// RekeySubtree recursively walks obj, re-encrypting any envelope found
// under a non-active key with the active key, and reports whether anything
// changed so the caller can skip a write when nothing needed rekeying.
func (m *Manager) RekeySubtree(obj map[string]any) (map[string]any, bool, error) {
	out := make(map[string]any, len(obj))
	changed := false
	for k, v := range obj {
		nv, c, err := m.rekeyValue(v)
		if err != nil {
			return nil, false, err
		}
		out[k] = nv
		changed = changed || c
	}
	return out, changed, nil
}

func (m *Manager) rekeyValue(v any) (any, bool, error) {
	switch val := v.(type) {
	case map[string]any:
		return m.RekeySubtree(val)
	case []any:
		out := make([]any, len(val))
		changed := false
		for i, elem := range val {
			nv, c, err := m.rekeyValue(elem)
			if err != nil {
				return nil, false, err
			}
			out[i] = nv
			changed = changed || c
		}
		return out, changed, nil
	case string:
		return m.RekeyValue(val)
	default:
		return val, false, nil
	}
}

// DecryptSubtree recursively walks obj, replacing any value that looks like
// an encryption envelope with its decrypted plaintext. It is the inverse of
// EncryptSubtree and does not need the predicate: envelopes are
// self-identifying.
func (m *Manager) DecryptSubtree(obj map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		nv, err := m.decryptValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func (m *Manager) decryptValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return m.DecryptSubtree(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			nv, err := m.decryptValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case string:
		if IsEnvelope(val) {
			return m.Decrypt(val)
		}
		return val, nil
	default:
		return val, nil
	}
}

// scalarToString renders a non-string JSON scalar (number, bool) back to a
// string so it can be sealed; RawConfig/EffectiveConfig readers know to
// parse it back based on the caller's expected type.
func scalarToString(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return ""
	}
}
