// Package actor identifies the user performing an action. Workflow guards
// (QC approval, reopen) are expressed as capability checks on the actor so
// that handlers and services never inspect raw role strings.
package actor

import (
	"context"
	"fmt"
)

// Role names used across the service.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleQC      = "qc"
	RoleUser    = "user"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Username is the actor's login name
	Username string `json:"username"`

	// Email is the actor's email address
	Email string `json:"email"`

	// Role is the actor's role (admin, manager, qc, user)
	Role string `json:"role"`

	// Branch is the warehouse branch the actor is assigned to
	Branch string `json:"branch,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.Username, a.Role)
}

// CanApproveQC reports whether the actor may approve or reject submitted
// documents.
func (a *Actor) CanApproveQC() bool {
	if a == nil {
		return false
	}
	switch a.Role {
	case RoleAdmin, RoleManager, RoleQC:
		return true
	}
	return false
}

// CanManage reports whether the actor holds an admin or manager role.
func (a *Actor) CanManage() bool {
	if a == nil {
		return false
	}
	return a.Role == RoleAdmin || a.Role == RoleManager
}

// CanReopen reports whether the actor may reopen a document owned by ownerID.
// Owners may reopen their own documents; admins and managers may reopen any.
func (a *Actor) CanReopen(ownerID string) bool {
	if a == nil {
		return false
	}
	return a.ID == ownerID || a.CanManage()
}

// Owns reports whether the actor owns the given document.
func (a *Actor) Owns(ownerID string) bool {
	return a != nil && a.ID == ownerID
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs and system-initiated operations.
func SystemActor() *Actor {
	return &Actor{
		ID:       "00000000-0000-0000-0000-000000000000",
		Username: "system",
		Role:     RoleAdmin,
	}
}
