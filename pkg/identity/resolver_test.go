package identity

import "testing"

func TestLooksLikeJWT(t *testing.T) {
	cases := []struct {
		name   string
		bearer string
		want   bool
	}{
		{"compact jwt", "eyJhbGciOiJSUzI1NiJ9.eyJzdWIiOiJhIn0.sig", true},
		{"opaque token", "xJ3kP9qzWZ1R8tYvN0bQ7mH2sF6cL4dE5gK1oA3", false},
		{"empty", "", false},
		{"single dot", "a.b", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksLikeJWT(tc.bearer); got != tc.want {
				t.Errorf("looksLikeJWT(%q) = %v, want %v", tc.bearer, got, tc.want)
			}
		})
	}
}

func TestSecureEqual(t *testing.T) {
	if !secureEqual("same-value", "same-value") {
		t.Error("expected equal strings to compare equal")
	}
	if secureEqual("same-value", "different") {
		t.Error("expected different strings to compare unequal")
	}
	if secureEqual("short", "muchlonger") {
		t.Error("expected different-length strings to compare unequal")
	}
}
