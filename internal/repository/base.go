// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"log/slog"
	"strings"

	"blogger/internal/middleware"
	"blogger/internal/models"
	"blogger/internal/observability"
)

// ChangePublisher receives change events after a write commits.
type ChangePublisher interface {
	Publish(ctx context.Context, change models.Change) error
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// publishChange fans out a committed write. The write has already succeeded,
// so a publish failure is logged and swallowed.
func publishChange(ctx context.Context, p ChangePublisher, change models.Change) {
	if p == nil {
		return
	}
	observability.ChangeEventsPublished.WithLabelValues(change.Collection).Inc()
	if err := p.Publish(ctx, change); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish change",
			slog.String("collection", change.Collection),
			slog.String("doc_id", change.DocID),
			slog.String("error", err.Error()),
		)
	}
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// isUsernameConflict narrows a unique violation to the username index.
func isUsernameConflict(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(strings.ToLower(err.Error()), "username")
}
