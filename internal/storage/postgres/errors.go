package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bobmcallan/folio/internal/interfaces"
)

// undefinedTable is the SQLSTATE for a relation that does not exist.
const undefinedTable = "42P01"

func isMissingTableError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// wrapReadErr maps a missing table onto interfaces.ErrTableMissing.
func wrapReadErr(op string, err error) error {
	if isMissingTableError(err) {
		return fmt.Errorf("%s: %w", op, interfaces.ErrTableMissing)
	}
	return fmt.Errorf("%s: %w", op, err)
}
