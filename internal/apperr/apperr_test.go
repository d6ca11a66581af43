package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Unauthenticated, http.StatusUnauthorized},
		{PermissionDenied, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{InvalidInput, http.StatusBadRequest},
		{PolicyViolation, http.StatusUnprocessableEntity},
		{TamperDetected, http.StatusInternalServerError},
		{KeyUnknown, http.StatusInternalServerError},
		{Transient, http.StatusServiceUnavailable},
		{Deadline, http.StatusGatewayTimeout},
		{FKViolation, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := New(tc.kind, "boom")
			if got := StatusOf(err); got != tc.want {
				t.Errorf("StatusOf(%s) = %d, want %d", tc.kind, got, tc.want)
			}
		})
	}
}

func TestStatusOfUnclassified(t *testing.T) {
	if got := StatusOf(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("StatusOf(plain) = %d, want 500", got)
	}
}

func TestIs(t *testing.T) {
	err := Wrap(NotFound, errors.New("no rows"), "node not found")
	if !Is(err, NotFound) {
		t.Error("expected Is(err, NotFound) to be true")
	}
	if Is(err, Conflict) {
		t.Error("expected Is(err, Conflict) to be false")
	}
}

func TestWithPathAndKeyID(t *testing.T) {
	err := New(PolicyViolation, "locked path").WithPath("model.name")
	if err.Path != "model.name" {
		t.Errorf("Path = %q, want model.name", err.Path)
	}

	kerr := New(KeyUnknown, "unknown key").WithKeyID("k2")
	if kerr.KeyID != "k2" {
		t.Errorf("KeyID = %q, want k2", kerr.KeyID)
	}
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := Wrap(Transient, sentinel, "db down")
	if !errors.Is(err, sentinel) {
		t.Error("expected errors.Is to find the wrapped sentinel")
	}
}
