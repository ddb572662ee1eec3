package rbac

import (
	"context"
	"testing"
)

func TestEnforcer_AdminAccess(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	enforcer.RegisterUser(&User{
		ID:    "admin-1",
		Roles: []RoleName{"admin"},
	})

	ctx := context.Background()
	if !enforcer.Check(ctx, "admin-1", PermCommandApprove, "any") {
		t.Error("admin should have command approve permission")
	}
	if !enforcer.Check(ctx, "admin-1", PermVaultRotate, "any") {
		t.Error("admin should have vault rotate permission")
	}
}

func TestEnforcer_ViewerRestrictions(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	enforcer.RegisterUser(&User{
		ID:    "viewer-1",
		Roles: []RoleName{"viewer"},
	})

	ctx := context.Background()
	if !enforcer.Check(ctx, "viewer-1", PermDocsView, "any") {
		t.Error("viewer should have docs view permission")
	}
	if enforcer.Check(ctx, "viewer-1", PermCommandApprove, "any") {
		t.Error("viewer should NOT have command approve permission")
	}
	if enforcer.Check(ctx, "viewer-1", PermVaultRotate, "any") {
		t.Error("viewer should NOT have vault rotate permission")
	}
}

func TestEnforcer_UnknownUser(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	ctx := context.Background()
	if enforcer.Check(ctx, "nobody", PermDocsView, "any") {
		t.Error("unknown user should be denied")
	}
}

func TestEnforcer_DisabledUser(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	enforcer.RegisterUser(&User{
		ID:       "disabled-1",
		Roles:    []RoleName{"admin"},
		Disabled: true,
	})

	ctx := context.Background()
	if enforcer.Check(ctx, "disabled-1", PermDocsView, "any") {
		t.Error("disabled user should be denied")
	}
}

func TestEnforcer_ScopeRestriction(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	enforcer.RegisterUser(&User{
		ID:    "scoped-1",
		Roles: []RoleName{"operator"},
		Scopes: []ResourceScope{
			{DocumentIDs: []string{"doc-staging"}},
		},
	})

	ctx := context.Background()

	// Should allow in-scope document
	if !enforcer.CheckWithScope(ctx, "scoped-1", PermScheduleManage, "schedule", "doc-staging") {
		t.Error("should allow scoped document")
	}

	// Should deny out-of-scope document
	if enforcer.CheckWithScope(ctx, "scoped-1", PermScheduleManage, "schedule", "doc-prod") {
		t.Error("should deny out-of-scope document")
	}
}

func TestEnforcer_ChannelResolution(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	enforcer.RegisterUser(&User{
		ID:    "multi-channel",
		Roles: []RoleName{"operator"},
		ChannelIDs: map[string]string{
			"telegram": "12345",
			"discord":  "67890",
		},
	})

	user, ok := enforcer.ResolveUserFromChannel("telegram", "12345")
	if !ok || user.ID != "multi-channel" {
		t.Error("should resolve user from telegram channel")
	}

	user, ok = enforcer.ResolveUserFromChannel("discord", "67890")
	if !ok || user.ID != "multi-channel" {
		t.Error("should resolve user from discord channel")
	}

	_, ok = enforcer.ResolveUserFromChannel("slack", "unknown")
	if ok {
		t.Error("should not resolve unknown channel mapping")
	}
}

func TestMatchPermission(t *testing.T) {
	tests := []struct {
		granted, requested Permission
		expected           bool
	}{
		{PermAdmin, PermCommandApprove, true},        // admin:* matches everything
		{PermDocsView, PermDocsView, true},            // exact match
		{PermDocsView, PermCommandApprove, false},     // different action
		{PermCommandApprove, PermCommandReject, false}, // no wildcard
		{"command:*", PermCommandApprove, true},       // resource wildcard
		{"command:*", PermDocsView, false},            // different resource
	}

	for _, tt := range tests {
		t.Run(string(tt.granted)+"→"+string(tt.requested), func(t *testing.T) {
			got := matchPermission(tt.granted, tt.requested)
			if got != tt.expected {
				t.Errorf("matchPermission(%s, %s) = %v, want %v", tt.granted, tt.requested, got, tt.expected)
			}
		})
	}
}

func TestAuditLogger_Query(t *testing.T) {
	audit := NewStructuredAuditLogger(1000)
	enforcer := NewEnforcer(audit)

	enforcer.RegisterUser(&User{ID: "user-1", Roles: []RoleName{"viewer"}})

	ctx := context.Background()
	enforcer.Check(ctx, "user-1", PermDocsView, "documents")       // allow
	enforcer.Check(ctx, "user-1", PermCommandApprove, "commands") // deny

	entries := audit.Query(AuditQueryOptions{UserID: "user-1"})
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}

	allows := audit.Query(AuditQueryOptions{UserID: "user-1", Decision: "allow"})
	if len(allows) != 1 {
		t.Errorf("expected 1 allow entry, got %d", len(allows))
	}

	denies := audit.Query(AuditQueryOptions{UserID: "user-1", Decision: "deny"})
	if len(denies) != 1 {
		t.Errorf("expected 1 deny entry, got %d", len(denies))
	}
}
