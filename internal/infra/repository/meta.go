package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/totegamma/customeradmin/internal/config"
	"github.com/totegamma/customeradmin/internal/domain"
	"github.com/totegamma/customeradmin/internal/infra/database/models"
)

// MetaRepository stores key/value rows owned by customers. A key may hold
// several values unless written with unique.
type MetaRepository struct {
	db    *gorm.DB
	table string
	lock  func(tx *gorm.DB, key int64) error
}

func NewMetaRepository(db *gorm.DB, store config.Store) *MetaRepository {
	return &MetaRepository{db: db, table: store.MetaTable, lock: advisoryLock}
}

func (r *MetaRepository) query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *MetaRepository) byKey(tx *gorm.DB, customerID int64, key string) *gorm.DB {
	return tx.Table(r.table).Where("customer_id = ? AND meta_key = ?", customerID, key)
}

// Add appends a value. With unique set and an existing row for the key, it
// reports added=false and writes nothing.
func (r *MetaRepository) Add(ctx context.Context, customerID int64, key, value string, unique bool) (int64, bool, error) {
	if key == "" {
		return 0, false, domain.ErrInvalidInput
	}

	entry := models.CustomerMeta{
		CustomerID: customerID,
		MetaKey:    key,
		MetaValue:  value,
	}

	if !unique {
		if err := r.query(ctx).Create(&entry).Error; err != nil {
			return 0, false, storageError("add meta", err)
		}
		return entry.ID, true, nil
	}

	// check-then-insert must not interleave for the same owner and key
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lock(tx, lockKey(r.table, customerID, key)); err != nil {
			return err
		}

		var count int64
		if err := r.byKey(tx, customerID, key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		if err := tx.Table(r.table).Create(&entry).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return 0, false, storageError("add meta", err)
	}
	if !added {
		return 0, false, nil
	}
	return entry.ID, true, nil
}

// GetSingle returns the first value stored for key, or "" when there is none.
func (r *MetaRepository) GetSingle(ctx context.Context, customerID int64, key string) (string, error) {
	var entry models.CustomerMeta
	err := r.byKey(r.db.WithContext(ctx), customerID, key).
		Order("meta_id ASC").
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", storageError("get meta", err)
	}
	return entry.MetaValue, nil
}

// GetAllForKey returns every value of key in insertion order.
func (r *MetaRepository) GetAllForKey(ctx context.Context, customerID int64, key string) ([]string, error) {
	values := []string{}
	err := r.byKey(r.db.WithContext(ctx), customerID, key).
		Order("meta_id ASC").
		Pluck("meta_value", &values).Error
	if err != nil {
		return nil, storageError("get meta values", err)
	}
	return values, nil
}

// GetAll returns every row of the customer grouped by key.
func (r *MetaRepository) GetAll(ctx context.Context, customerID int64) (map[string][]string, error) {
	var entries []models.CustomerMeta
	err := r.query(ctx).
		Where("customer_id = ?", customerID).
		Order("meta_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, storageError("get all meta", err)
	}

	result := make(map[string][]string)
	for _, e := range entries {
		result[e.MetaKey] = append(result[e.MetaKey], e.MetaValue)
	}
	return result, nil
}

// Update rewrites the value of key.
//
// With prevValue set only rows holding that value change, and false is
// returned when none do. Without prevValue the key must hold at most one
// row: an absent key is added, a single row is rewritten and several rows
// yield ErrAmbiguousMeta.
func (r *MetaRepository) Update(ctx context.Context, customerID int64, key, value, prevValue string) (bool, error) {
	if key == "" {
		return false, domain.ErrInvalidInput
	}

	updated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lock(tx, lockKey(r.table, customerID, key)); err != nil {
			return err
		}

		if prevValue != "" {
			result := r.byKey(tx, customerID, key).
				Where("meta_value = ?", prevValue).
				Update("meta_value", value)
			if result.Error != nil {
				return result.Error
			}
			updated = result.RowsAffected > 0
			return nil
		}

		var count int64
		if err := r.byKey(tx, customerID, key).Count(&count).Error; err != nil {
			return err
		}

		switch {
		case count == 0:
			entry := models.CustomerMeta{CustomerID: customerID, MetaKey: key, MetaValue: value}
			if err := tx.Table(r.table).Create(&entry).Error; err != nil {
				return err
			}
		case count > 1:
			return domain.ErrAmbiguousMeta
		default:
			if err := r.byKey(tx, customerID, key).Update("meta_value", value).Error; err != nil {
				return err
			}
		}
		updated = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAmbiguousMeta) {
			return false, err
		}
		return false, storageError("update meta", err)
	}
	return updated, nil
}

// Delete removes every value of a non-default key. It returns false when
// nothing was stored.
func (r *MetaRepository) Delete(ctx context.Context, customerID int64, key string) (bool, error) {
	if domain.IsDefaultMetaKey(key) {
		return false, domain.ProtectedKeyError{Key: key}
	}

	result := r.byKey(r.db.WithContext(ctx), customerID, key).Delete(&models.CustomerMeta{})
	if result.Error != nil {
		return false, storageError("delete meta", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteValue removes the rows of a non-default key holding value.
func (r *MetaRepository) DeleteValue(ctx context.Context, customerID int64, key, value string) (bool, error) {
	if domain.IsDefaultMetaKey(key) {
		return false, domain.ProtectedKeyError{Key: key}
	}

	result := r.byKey(r.db.WithContext(ctx), customerID, key).
		Where("meta_value = ?", value).
		Delete(&models.CustomerMeta{})
	if result.Error != nil {
		return false, storageError("delete meta value", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteCustom removes every non-default key of the customer and returns
// the number of rows deleted.
func (r *MetaRepository) DeleteCustom(ctx context.Context, customerID int64) (int64, error) {
	result := r.query(ctx).
		Where("customer_id = ? AND meta_key NOT IN ?", customerID, domain.DefaultMetaKeyNames()).
		Delete(&models.CustomerMeta{})
	if result.Error != nil {
		return 0, storageError("delete custom meta", result.Error)
	}
	return result.RowsAffected, nil
}
