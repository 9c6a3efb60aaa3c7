package repository

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"gorm.io/gorm"

	"github.com/totegamma/customeradmin/internal/domain"
)

// lockKey maps one (table, customer, meta key) triple onto the int64 space of
// postgres advisory locks.
func lockKey(table string, ownerID int64, key string) int64 {
	parts := []string{domain.OwnerKindCustomer, table, strconv.FormatInt(ownerID, 10), key}
	return int64(xxh3.HashString(strings.Join(parts, "\x00")))
}

// advisoryLock takes a transaction scoped lock on postgres. sqlite already
// serializes writers.
func advisoryLock(tx *gorm.DB, key int64) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error
}
