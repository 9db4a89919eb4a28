package server

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"blogger/internal/middleware"
	"blogger/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// parseLimit reads ?limit= with bounds.
func parseLimit(c *fiber.Ctx) int {
	return clampLimit(c.Query("limit"))
}

// clampLimit parses raw as a page size. Out-of-range values are clamped.
func clampLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// WebSocket clients cannot set headers from browsers, so ?token= is accepted too.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

func getUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("userID").(string)
	return userID
}

// mapServiceError maps an error code to its HTTP status.
func mapServiceError(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeUnauthenticated, models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUsernameTaken, models.CodeAccountExists:
		return fiber.StatusConflict
	case models.CodeStorage, models.CodeWrite:
		return fiber.StatusBadGateway
	case models.CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// respondServiceError writes err with the status its code maps to.
// Errors without an AppError are reported as internal.
func respondServiceError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		err = models.NewInternalError(err)
	}
	status := mapServiceError(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"path", c.Path(), "code", models.ErrorCode(err), "error", err)
	}
	return models.RespondWithError(c, status, err)
}

// mediaRoutePrefix returns the path component of the public blob base URL.
func mediaRoutePrefix(baseURL string) string {
	prefix := "/media"
	if u, err := url.Parse(baseURL); err == nil && u.Path != "" && u.Path != "/" {
		prefix = u.Path
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
