package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtxHandler_AddsContextAttributes(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(&ctxHandler{slog.NewJSONHandler(&buf, nil)})

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, "u1")
	ctx = context.WithValue(ctx, TraceIDKey, "trace-1")
	logger.With("component", "test").InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"user_id":"u1"`)
	assert.Contains(t, out, `"trace_id":"trace-1"`)
	assert.Contains(t, out, `"component":"test"`)
}

func TestContextMiddleware_PropagatesRequestID(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(ContextMiddleware())

	var seen string
	app.Get("/", func(c *fiber.Ctx) error {
		seen, _ = c.UserContext().Value(RequestIDKey).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "fixed-id")
	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "fixed-id", seen)
}

func TestStructuredLogger_PassesThroughErrors(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Use(StructuredLogger())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
