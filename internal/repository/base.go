// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"rentonmap/internal/models"
	"rentonmap/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

// traced wraps a repository call in a span and records its latency.
func traced(ctx context.Context, table, method string, fn func(ctx context.Context) error) error {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, method, table)
	done := observability.TrackQuery(method, table)
	err := fn(ctx)
	done()
	observability.EndSpan(span, err)
	return err
}

// appError passes AppErrors through and wraps anything else as INTERNAL_ERROR.
func appError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return models.NewInternalError(err)
}

// failed converts err for the caller and logs it only when it is a storage
// fault rather than a rejected request.
func failed(ctx context.Context, log *observability.RepoLogger, op string, err error) error {
	converted := appError(err)
	if models.StatusFor(converted) >= 500 {
		log.LogError(ctx, err, op)
	}
	return converted
}
