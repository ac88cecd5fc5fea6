package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/streaming"
)

// ClientNotifier pushes notifications to connected MCP clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier bound to mcpServer.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the client. Best-effort: a client that
// went away is forgotten rather than reported.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Disconnect(clientID)
		return nil
	}
	return err
}

// Forward relays editor events from hub to the client that owns each
// designer session until ctx is cancelled.
func Forward(ctx context.Context, hub streaming.EventHub, sessions *SessionRegistry, notifier ClientNotifier, logger *slog.Logger) error {
	events, cancel, err := hub.Subscribe(ctx, streaming.Filter{Types: []string{"editor.*"}})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			owner, ok := sessions.OwnerOf(evt.SessionID)
			if !ok {
				continue
			}
			payload := map[string]any{
				"level":  "info",
				"logger": "flowcanvas",
				"data":   evt,
			}
			if err := notifier.Notify(ctx, owner, payload); err != nil {
				logger.WarnContext(ctx, "notify client", "client", owner, "event", evt.Type, "error", err)
			}
		}
	}
}
