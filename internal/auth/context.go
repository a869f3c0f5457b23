// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithPrincipal/FromContext for propagating identity via context

package auth

import (
	"context"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// Principal is the authenticated identity extracted from a request. It is
// populated by the auth middleware and retrieved from context in handlers.
type Principal struct {
	ID   string // user id
	Role string // "client" | "admin"
}

// IsAdmin returns true if the principal has the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == store.RoleAdmin
}

// Scope derives the tenant scope for this principal. Admins see everything;
// clients see only rows they own.
func (p *Principal) Scope() store.Scope {
	if p.IsAdmin() {
		return store.AdminScope()
	}
	return store.TenantScope(p.ID)
}

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	val := ctx.Value(principalKey{})
	if val == nil {
		return nil
	}
	p, ok := val.(*Principal)
	if !ok {
		return nil
	}
	return p
}
