package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/garagedesk/garagedesk/internal/shared"
)

// PostgreSQL error codes mapped onto domain errors.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeInvalidText          = "22P02"
)

// MapError translates driver errors into shared domain errors. Unknown errors pass through.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &shared.Error{Kind: shared.KindNotFound, Op: op, Message: "record not found", Err: err}
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return &shared.Error{Kind: shared.KindConflict, Op: op, Message: "duplicate " + pgErr.ConstraintName, Err: err}
	case codeForeignKeyViolation:
		return &shared.Error{Kind: shared.KindReferential, Op: op, Message: "violates " + pgErr.ConstraintName, Err: err}
	case codeCheckViolation, codeInvalidText:
		return &shared.Error{Kind: shared.KindValidation, Op: op, Message: pgErr.Message, Err: err}
	case codeSerializationFailure:
		return &shared.Error{Kind: shared.KindConflict, Op: op, Message: "concurrent update, retry", Err: err}
	default:
		return err
	}
}
