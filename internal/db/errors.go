package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"keywordhub/internal/internalerr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// wrapErr classifies a driver error into one of the internalerr kinds.
// Errors that already carry a kind pass through unchanged.
func wrapErr(what string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		internalerr.ErrNotFound,
		internalerr.ErrConflict,
		internalerr.ErrValidation,
		internalerr.ErrPersistence,
		internalerr.ErrDelivery,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, internalerr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, internalerr.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s: referenced row missing: %w", what, internalerr.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w: %w", what, internalerr.ErrPersistence, err)
}

// mustAffect turns an update that touched no rows into ErrNotFound.
func mustAffect(what string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return wrapErr(what, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, internalerr.ErrNotFound)
	}
	return nil
}
