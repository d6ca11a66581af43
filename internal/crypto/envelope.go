// Package crypto implements the envelope encryption used to protect
// sensitive fields inside node configuration and SSO client secrets. The
// AEAD construction follows the AES-256-GCM pattern the rest of the
// wisbric services use for at-rest secrets, generalized here to support
// multiple active/retired keys and a self-describing envelope string
// instead of a single hex blob.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/wisbric/confcore/internal/apperr"
)

// Scheme is the versioned envelope scheme identifier. A future scheme can
// be added without breaking decrypt of envelopes written under this one.
const Scheme = "aesgcm1"

const envelopeFields = 5

// Envelope is the parsed form of a "<scheme>:<key_id>:<nonce_b64>:<ct_b64>:<tag_b64>" string.
type Envelope struct {
	Scheme string
	KeyID  string
	Nonce  []byte
	CT     []byte // ciphertext, excluding the GCM tag
	Tag    []byte
}

// String renders the envelope back to its wire form.
func (e Envelope) String() string {
	return strings.Join([]string{
		e.Scheme,
		e.KeyID,
		base64.RawURLEncoding.EncodeToString(e.Nonce),
		base64.RawURLEncoding.EncodeToString(e.CT),
		base64.RawURLEncoding.EncodeToString(e.Tag),
	}, ":")
}

// ParseEnvelope parses a wire-format envelope string.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ":")
	if len(parts) != envelopeFields {
		return Envelope{}, apperr.New(apperr.TamperDetected, "malformed envelope")
	}

	nonce, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Envelope{}, apperr.Wrap(apperr.TamperDetected, err, "malformed envelope nonce")
	}
	ct, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return Envelope{}, apperr.Wrap(apperr.TamperDetected, err, "malformed envelope ciphertext")
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return Envelope{}, apperr.Wrap(apperr.TamperDetected, err, "malformed envelope tag")
	}

	return Envelope{
		Scheme: parts[0],
		KeyID:  parts[1],
		Nonce:  nonce,
		CT:     ct,
		Tag:    tag,
	}, nil
}

// IsEnvelope reports whether s looks like a wire-format envelope, without
// validating its contents. Used by DecryptSubtree to tell an already
// encrypted value from a plain one (e.g. on re-decrypt of a merged view).
func IsEnvelope(s string) bool {
	return strings.HasPrefix(s, Scheme+":") && strings.Count(s, ":") == envelopeFields-1
}

// Key is one named 256-bit AEAD key.
type Key struct {
	ID     string
	Secret [32]byte
}

// Manager holds the active key (used for all new encryptions) and any
// retired keys (decrypt-only, kept so old envelopes stay readable until
// re-keyed). Construction fails fast (startup error) per the module's
// failure policy: a bad key is a deploy-time mistake, not a request-time one.
type Manager struct {
	active  Key
	byID    map[string]Key
}

// NewManager builds a Manager from a base64-encoded 32-byte active key named
// activeKeyID and a map of retired key ids to base64-encoded 32-byte keys
// (as produced by config.Config.RetiredKeys).
func NewManager(activeKeyID string, activeKeyB64 string, retired map[string]string) (*Manager, error) {
	active, err := decodeKey(activeKeyID, activeKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decoding active encryption key: %w", err)
	}

	m := &Manager{
		active: active,
		byID:   map[string]Key{active.ID: active},
	}

	for id, b64 := range retired {
		k, err := decodeKey(id, b64)
		if err != nil {
			return nil, fmt.Errorf("decoding retired encryption key %q: %w", id, err)
		}
		m.byID[k.ID] = k
	}

	return m, nil
}

func decodeKey(id, b64 string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Key{}, err
	}
	if len(raw) != 32 {
		return Key{}, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	var k Key
	k.ID = id
	copy(k.Secret[:], raw)
	return k, nil
}

// ActiveKeyID returns the id of the key new encryptions are stamped with.
func (m *Manager) ActiveKeyID() string { return m.active.ID }

// Encrypt seals plaintext under the active key and returns its envelope.
func (m *Manager) Encrypt(plaintext string) (string, error) {
	gcm, err := gcmFor(m.active.Secret)
	if err != nil {
		return "", fmt.Errorf("building cipher: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	env := Envelope{
		Scheme: Scheme,
		KeyID:  m.active.ID,
		Nonce:  nonce,
		CT:     ct,
		Tag:    tag,
	}
	return env.String(), nil
}

// Decrypt opens an envelope string, returning KeyUnknown if its key_id is
// not known to this Manager and TamperDetected on an authentication
// failure (wrong key, corrupted ciphertext, or truncated envelope).
func (m *Manager) Decrypt(envelope string) (string, error) {
	env, err := ParseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	if env.Scheme != Scheme {
		return "", apperr.New(apperr.KeyUnknown, "unrecognized envelope scheme").WithKeyID(env.KeyID)
	}

	key, ok := m.byID[env.KeyID]
	if !ok {
		return "", apperr.New(apperr.KeyUnknown, "envelope references an unknown key").WithKeyID(env.KeyID)
	}

	gcm, err := gcmFor(key.Secret)
	if err != nil {
		return "", fmt.Errorf("building cipher: %w", err)
	}

	sealed := append(append([]byte{}, env.CT...), env.Tag...)
	plaintext, err := gcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.TamperDetected, err, "envelope authentication failed").WithKeyID(env.KeyID)
	}

	return string(plaintext), nil
}

func gcmFor(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
