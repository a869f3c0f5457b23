// ABOUTME: Reply generation interface and the placeholder echo implementation
// ABOUTME: Real model backends plug in behind Replier without touching the engine

package engine

import (
	"context"
	"fmt"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// ReplyRequest carries everything a backend needs to produce one reply.
type ReplyRequest struct {
	SessionID string
	Message   string
	Settings  store.AgentSettings
}

// Replier produces an automated reply to a visitor message. Implementations
// must respect ctx; the engine bounds each call with a timeout.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// EchoReplier is the placeholder backend used until a model integration is
// configured. It echoes the visitor's message back.
type EchoReplier struct{}

// Reply returns a canned echo of the incoming message.
func (EchoReplier) Reply(_ context.Context, req ReplyRequest) (string, error) {
	return fmt.Sprintf("I received your message: %q", req.Message), nil
}

// ReplierFunc adapts a function to the Replier interface.
type ReplierFunc func(ctx context.Context, req ReplyRequest) (string, error)

func (f ReplierFunc) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	return f(ctx, req)
}
