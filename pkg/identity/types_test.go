package identity

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if p := FromContext(ctx); p != nil {
		t.Fatalf("expected nil principal, got %+v", p)
	}

	p := &Principal{Role: RoleTeam, AuthKind: AuthKindTeamToken, OrgID: "acme"}
	ctx = NewContext(ctx, p)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected principal, got nil")
	}
	if got.OrgID != "acme" {
		t.Errorf("OrgID = %q, want acme", got.OrgID)
	}
}

func TestHasPermissionWildcard(t *testing.T) {
	p := &Principal{Permissions: permSet(PermAdminAll)}
	if !p.HasPermission(PermConfigRead) {
		t.Error("admin:* should satisfy any permission")
	}
}

func TestHasPermissionExactMatch(t *testing.T) {
	p := &Principal{Permissions: permSet(PermConfigRead)}
	if !p.HasPermission(PermConfigRead) {
		t.Error("expected exact permission match to succeed")
	}
	if p.HasPermission(PermConfigWriteSelf) {
		t.Error("expected unrelated permission to fail")
	}
}

func TestHasPermissionNilPrincipal(t *testing.T) {
	var p *Principal
	if p.HasPermission(PermAdminAll) {
		t.Error("nil principal must never satisfy a permission")
	}
}

func TestCanWrite(t *testing.T) {
	viewer := &Principal{Permissions: permSet(PermConfigRead)}
	if viewer.CanWrite() {
		t.Error("viewer-only permissions should not be able to write")
	}

	team := &Principal{Permissions: permSet(PermConfigRead, PermConfigWriteSelf)}
	if !team.CanWrite() {
		t.Error("team permissions should be able to write")
	}

	admin := &Principal{Permissions: permSet(PermAdminAll)}
	if !admin.CanWrite() {
		t.Error("admin permissions should be able to write")
	}
}
