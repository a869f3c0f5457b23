// Package api exposes the chatdesk HTTP surface.
//
// Three groups of endpoints share one router: the unauthenticated webhook
// surface used by the embedded chat widget, the public login/register
// endpoints, and the bearer-token staff surface (admin endpoints add a role
// check). Handlers derive a store.Scope from the authenticated principal,
// so tenant isolation is enforced below this layer; an out-of-scope id
// produces the same 404 as a missing one.
//
// The webhook message endpoint never returns an error payload for internal
// failures: the widget always receives a reply string.
package api
