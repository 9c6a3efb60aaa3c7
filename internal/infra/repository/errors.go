package repository

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/totegamma/customeradmin/internal/domain"
)

const pgUniqueViolation = "23505"

func storageError(op string, err error) error {
	return domain.StorageError{Op: op, Err: err}
}

// uniqueViolation reports whether err is a unique index violation and, when
// the driver exposes it, which customer column was violated.
func uniqueViolation(err error) (domain.DuplicateKind, bool) {
	if err == nil {
		return domain.DuplicateUnknown, false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return domain.DuplicateUnknown, false
		}
		return kindFromConstraint(pgErr.ConstraintName), true
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.DuplicateUnknown, true
	}

	// sqlite: "UNIQUE constraint failed: customers.email (2067)"
	msg := err.Error()
	if _, cols, ok := strings.Cut(msg, sqliteUniqueFailed); ok {
		cols, _, _ = strings.Cut(cols, " (")
		return kindFromColumn(cols[strings.LastIndex(cols, ".")+1:]), true
	}
	return domain.DuplicateUnknown, false
}

const sqliteUniqueFailed = "UNIQUE constraint failed: "

// kindFromConstraint maps an index named <table>_<column>_key to its column.
func kindFromConstraint(name string) domain.DuplicateKind {
	switch {
	case strings.HasSuffix(name, "_user_id_key"):
		return domain.DuplicateUser
	case strings.HasSuffix(name, "_email_key"):
		return domain.DuplicateEmail
	default:
		return domain.DuplicateUnknown
	}
}

func kindFromColumn(column string) domain.DuplicateKind {
	switch column {
	case "user_id":
		return domain.DuplicateUser
	case "email":
		return domain.DuplicateEmail
	default:
		return domain.DuplicateUnknown
	}
}
