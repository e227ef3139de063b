package repositories

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories branch on.
const (
	sqlUndefinedTable  = "42P01"
	sqlUniqueViolation = "23505"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUndefinedTable(err error) bool  { return pgCode(err) == sqlUndefinedTable }
func isUniqueViolation(err error) bool { return pgCode(err) == sqlUniqueViolation }
