// RBAC middleware for the command dispatcher and approval surface.
// Wraps command execution and approval decisions with permission checks.
package rbac

import (
	"context"
	"fmt"
)

// CommandPermissionMap maps command kinds to the permission required to
// execute them once approved. Kinds not listed need no extra permission
// beyond whatever approval gate the command state machine already enforces.
var CommandPermissionMap = map[string]Permission{
	"schedule":          PermScheduleManage,
	"cancel_schedule":   PermScheduleManage,
	"conditional_order": PermOrderManage,
	"cancel_order":      PermOrderManage,
}

// CommandGuard wraps an RBAC enforcer to check permissions before a
// command is approved, rejected, or executed.
type CommandGuard struct {
	enforcer *Enforcer
	enabled  bool
}

// NewCommandGuard creates a new command guard.
func NewCommandGuard(enforcer *Enforcer, enabled bool) *CommandGuard {
	return &CommandGuard{enforcer: enforcer, enabled: enabled}
}

// CheckApproval returns nil if the user can approve or reject a pending
// command, or an error describing the denial.
func (g *CommandGuard) CheckApproval(ctx context.Context, userID UserID, documentID, commandID string, approve bool) error {
	if !g.enabled || g.enforcer == nil {
		return nil // RBAC not enabled, allow all
	}

	perm := PermCommandReject
	if approve {
		perm = PermCommandApprove
	}

	resource := fmt.Sprintf("command:%s/%s", documentID, commandID)
	if g.enforcer.CheckWithScope(ctx, userID, perm, resource, documentID) {
		return nil
	}

	return fmt.Errorf("access denied: user %s lacks permission %s for command %s", userID, perm, commandID)
}

// CheckKindAccess checks whether a user may manage a command of the given
// kind (schedules and conditional orders have their own management
// permissions distinct from plain command approval).
func (g *CommandGuard) CheckKindAccess(ctx context.Context, userID UserID, documentID, kind string) error {
	if !g.enabled || g.enforcer == nil {
		return nil
	}

	perm, ok := CommandPermissionMap[kind]
	if !ok {
		return nil // kinds outside the map rely on the approval gate alone
	}

	resource := fmt.Sprintf("kind:%s", kind)
	if g.enforcer.CheckWithScope(ctx, userID, perm, resource, documentID) {
		return nil
	}

	return fmt.Errorf("access denied: user %s lacks permission %s for command kind %s", userID, perm, kind)
}

// ResolveUser resolves a channel+senderID to an RBAC UserID using the enforcer.
func (g *CommandGuard) ResolveUser(channel, senderID string) UserID {
	if !g.enabled || g.enforcer == nil {
		return UserID(senderID)
	}
	user, ok := g.enforcer.ResolveUserFromChannel(channel, senderID)
	if !ok || user == nil {
		return UserID(senderID)
	}
	return user.ID
}
