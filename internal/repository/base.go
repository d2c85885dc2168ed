// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"

	"thirtyday/internal/models"
	"thirtyday/internal/observability"

	"gorm.io/gorm"
)

// instrument opens a span and latency timer for one repository call. The
// returned func closes both and records err on the span.
func instrument(ctx context.Context, method, table string) (context.Context, func(err error)) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, method, table)
	done := observability.TrackQuery(method, table)
	return ctx, func(err error) {
		done()
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordErrorInContext(ctx, err)
		}
		span.End()
	}
}

// transportError wraps a driver failure so callers can tell it apart from a
// domain rejection.
func transportError(ctx context.Context, logger *observability.RepoLogger, op string, err error) error {
	logger.LogError(ctx, err, op)
	return models.NewTransportError(op, err)
}
