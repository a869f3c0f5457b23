// ABOUTME: Tenant scope filter composing ownership predicates into queries
// ABOUTME: Pure predicate construction; every by-id read and mutation applies it

package store

// Scope narrows a query to the rows a caller may see. An admin scope leaves
// the query unrestricted; a tenant scope restricts it to rows owned by one
// user. Rows filtered out by a scope surface as ErrNotFound, never as a
// distinct forbidden error.
type Scope struct {
	userID string
	all    bool
}

// AdminScope returns an unrestricted scope.
func AdminScope() Scope {
	return Scope{all: true}
}

// TenantScope returns a scope restricted to rows owned by userID.
func TenantScope(userID string) Scope {
	return Scope{userID: userID}
}

// Unrestricted reports whether the scope applies no ownership filter.
func (sc Scope) Unrestricted() bool {
	return sc.all
}

// ownerClause returns a SQL fragment (beginning with " AND ") restricting
// column to the scope's owner, plus its arguments. Empty for admin scopes.
func (sc Scope) ownerClause(column string) (string, []any) {
	if sc.all {
		return "", nil
	}
	return " AND " + column + " = ?", []any{sc.userID}
}

// sessionOwnerClause restricts a chat_sessions query to the scope's tenant.
func (sc Scope) sessionOwnerClause() (string, []any) {
	return sc.ownerClause("owner_user_id")
}

// messageOwnerClause restricts a chat_messages query through session
// ownership: a message is visible when its session belongs to the tenant.
func (sc Scope) messageOwnerClause() (string, []any) {
	if sc.all {
		return "", nil
	}
	return " AND session_id IN (SELECT id FROM chat_sessions WHERE owner_user_id = ?)", []any{sc.userID}
}

// leadOwnerClause restricts a leads query. Lead scoping is indirect: a lead
// is visible when its session is owned by the tenant, or when the lead's own
// owner column matches (covers leads captured without a session).
func (sc Scope) leadOwnerClause() (string, []any) {
	if sc.all {
		return "", nil
	}
	clause := " AND (owner_user_id = ? OR session_id IN (SELECT id FROM chat_sessions WHERE owner_user_id = ?))"
	return clause, []any{sc.userID, sc.userID}
}
