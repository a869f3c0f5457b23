// Package auth provides JWT-based authentication for the chatdesk API.
//
// Tokens are HS256-signed JWTs carrying only a "sub" claim (the user id)
// with a 24 hour lifetime. Roles are never embedded in tokens; Middleware
// re-reads the role from the store on every request, so demoting or deleting
// an account takes effect on the next call rather than at token expiry.
//
// Handlers retrieve the authenticated identity with FromContext and derive
// a store.Scope from it via Principal.Scope.
//
// Passwords are hashed with bcrypt at cost 10.
package auth
