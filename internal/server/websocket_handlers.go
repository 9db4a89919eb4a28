package server

import (
	"context"
	"encoding/json"

	"blogger/internal/middleware"
	"blogger/internal/observability"
	"blogger/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedWebSocket streams feed snapshots. ?author= narrows the feed to one username.
func (s *Server) FeedWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		s.serveView(conn, realtime.FeedQuery{
			AuthorUsername: conn.Query("author"),
			Limit:          clampLimit(conn.Query("limit")),
		})
	})
}

// ProfileWebSocket streams snapshots of one user's profile and posts.
func (s *Server) ProfileWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		s.serveView(conn, realtime.ProfileQuery{
			Username: conn.Params("username"),
			Limit:    clampLimit(conn.Query("limit")),
		})
	})
}

// serveView keeps a live view open for the lifetime of the connection.
func (s *Server) serveView(conn *websocket.Conn, q realtime.Query) {
	observability.WebSocketConnectionsTotal.Inc()
	defer observability.WebSocketConnectionsTotal.Dec()

	ctx := s.shutdownCtx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	userID := s.optionalUserID(ctx, conn.Query("token"))
	client := realtime.NewClient(q.View(), conn, userID)

	sub, err := s.projector.Subscribe(ctx, q, func(snap *realtime.Snapshot) {
		payload, err := json.Marshal(snap)
		if err != nil {
			middleware.Logger.Error("snapshot marshal failed", "view", q.View(), "error", err)
			return
		}
		client.TrySend(payload)
	})
	if err != nil {
		middleware.Logger.Warn("live view failed to start", "view", q.View(), "error", err)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":"view unavailable"}`))
		_ = conn.Close()
		return
	}

	writeDone := make(chan struct{})
	go func() {
		client.WritePump()
		close(writeDone)
	}()
	client.ReadPump()

	// The conn is recycled once this handler returns, so the writer must be gone first.
	sub.Unsubscribe()
	client.Close()
	<-writeDone
}

// optionalUserID resolves a viewer for logging. Views are public, so a bad token is ignored.
func (s *Server) optionalUserID(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}
	principal, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		return ""
	}
	return principal.UID
}
