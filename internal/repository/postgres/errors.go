package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kasilink/kasilink-backend/internal/models"
)

// classify maps low-level pgx failures onto the shared error taxonomy so
// services can decide what is retryable without importing pgconn.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return fmt.Errorf("%w: %v", models.ErrStateConflict, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Anything that is not a server-reported error is a connection-level
	// failure and worth a retry.
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
