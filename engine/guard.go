package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gradekit/core"
)

// guard bounds every store call with a timeout and folds store failures into the core taxonomy.
type guard struct {
	timeout time.Duration
	log     *slog.Logger
}

func storeCall[T any](ctx context.Context, g guard, op string, fn func(context.Context) (T, error), attrs ...any) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	v, err := fn(cctx)
	if err != nil {
		err = g.translate(ctx, op, err, attrs...)
	}
	return v, err
}

func storeExec(ctx context.Context, g guard, op string, fn func(context.Context) error, attrs ...any) error {
	_, err := storeCall(ctx, g, op, func(c context.Context) (struct{}, error) { return struct{}{}, fn(c) }, attrs...)
	return err
}

func (g guard) translate(ctx context.Context, op string, err error, attrs ...any) error {
	attrs = append(attrs, "operation", op, "error", err)
	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrStudentNotFound),
		errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrConflict):
		g.log.DebugContext(ctx, "store call rejected", attrs...)
		return err
	case errors.Is(err, core.ErrTransient):
		g.log.ErrorContext(ctx, "store call failed", attrs...)
		return err
	default:
		g.log.ErrorContext(ctx, "store call failed", attrs...)
		return fmt.Errorf("%w: %s: %w", core.ErrTransient, op, err)
	}
}
