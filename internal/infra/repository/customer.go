package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/customeradmin/internal/config"
	"github.com/totegamma/customeradmin/internal/domain"
	"github.com/totegamma/customeradmin/internal/infra/database/models"
)

var sortColumns = map[domain.SortField][]string{
	domain.SortByID:         {"customer_id"},
	domain.SortByFirstName:  {"first_name"},
	domain.SortByLastName:   {"last_name"},
	domain.SortByName:       {"last_name", "first_name"},
	domain.SortByEmail:      {"email"},
	domain.SortByRegistered: {"registered"},
	domain.SortByOrderCount: {"order_count"},
}

type CustomerRepository struct {
	db    *gorm.DB
	table string
}

func NewCustomerRepository(db *gorm.DB, store config.Store) *CustomerRepository {
	return &CustomerRepository{db: db, table: store.CustomerTable}
}

func (r *CustomerRepository) query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *CustomerRepository) Insert(ctx context.Context, draft domain.CustomerDraft) (domain.Customer, error) {
	now := timestamp()

	var userID *int64
	if draft.UserID != nil && *draft.UserID > 0 {
		id := *draft.UserID
		userID = &id
	}

	customer := models.Customer{
		UserID:      userID,
		Email:       draft.Email,
		FirstName:   draft.FirstName,
		LastName:    draft.LastName,
		GuestKey:    draft.GuestKey,
		Registered:  now,
		LastUpdated: now,
	}

	err := r.query(ctx).Create(&customer).Error
	if err != nil {
		if kind, ok := uniqueViolation(err); ok {
			if kind == domain.DuplicateUnknown {
				kind = r.conflictKind(ctx, userID, draft.Email)
			}
			return domain.Customer{}, domain.DuplicateError{Kind: kind}
		}
		return domain.Customer{}, storageError("insert customer", err)
	}

	return toDomainCustomer(customer), nil
}

// conflictKind finds which identity collided after the driver reported an
// anonymous unique violation.
func (r *CustomerRepository) conflictKind(ctx context.Context, userID *int64, email string) domain.DuplicateKind {
	if userID != nil {
		if _, err := r.FindByUserID(ctx, *userID); err == nil {
			return domain.DuplicateUser
		}
	}
	if _, err := r.FindByEmail(ctx, email); err == nil {
		return domain.DuplicateEmail
	}
	return domain.DuplicateUnknown
}

func (r *CustomerRepository) FindByID(ctx context.Context, id int64) (domain.Customer, error) {
	return r.take(ctx, "find customer by id", "customer_id = ?", id)
}

func (r *CustomerRepository) FindByUserID(ctx context.Context, userID int64) (domain.Customer, error) {
	if userID <= 0 {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}
	return r.take(ctx, "find customer by user id", "user_id = ?", userID)
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if email == "" {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}
	return r.take(ctx, "find customer by email", "email = ?", email)
}

func (r *CustomerRepository) take(ctx context.Context, op string, query string, args ...any) (domain.Customer, error) {
	var customer models.Customer
	err := r.query(ctx).Where(query, args...).Take(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
		}
		return domain.Customer{}, storageError(op, err)
	}
	return toDomainCustomer(customer), nil
}

func (r *CustomerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.query(ctx).Count(&count).Error; err != nil {
		return 0, storageError("count customers", err)
	}
	return count, nil
}

func (r *CustomerRepository) List(ctx context.Context, q domain.ListQuery) ([]domain.Customer, error) {
	if q.Limit <= 0 || q.Offset < 0 {
		return nil, domain.ErrInvalidInput
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = domain.SortByID
	}
	columns, ok := sortColumns[orderBy]
	if !ok {
		return nil, domain.ErrInvalidSort
	}

	var desc bool
	switch q.Direction {
	case "", domain.SortAsc:
	case domain.SortDesc:
		desc = true
	default:
		return nil, domain.ErrInvalidSort
	}

	tx := r.query(ctx)
	for _, col := range columns {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc})
	}
	if orderBy != domain.SortByID {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "customer_id"}})
	}

	var rows []models.Customer
	err := tx.Offset(q.Offset).Limit(q.Limit).Find(&rows).Error
	if err != nil {
		return nil, storageError("list customers", err)
	}

	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, toDomainCustomer(row))
	}
	return customers, nil
}

// Update changes profile fields and refreshes last_updated. registered is
// never written after creation.
func (r *CustomerRepository) Update(ctx context.Context, id int64, update domain.CustomerUpdate) (domain.Customer, error) {
	values := map[string]any{
		"last_updated": timestamp(),
	}
	if update.Email != nil {
		values["email"] = *update.Email
	}
	if update.FirstName != nil {
		values["first_name"] = *update.FirstName
	}
	if update.LastName != nil {
		values["last_name"] = *update.LastName
	}

	result := r.query(ctx).Where("customer_id = ?", id).Updates(values)
	if result.Error != nil {
		if _, ok := uniqueViolation(result.Error); ok {
			return domain.Customer{}, domain.ErrDuplicateEmail
		}
		return domain.Customer{}, storageError("update customer", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}

	return r.FindByID(ctx, id)
}

// RecordOrder adds one completed order of the given amount to the
// customer's aggregates.
func (r *CustomerRepository) RecordOrder(ctx context.Context, id int64, amount float64) (domain.Customer, error) {
	if amount < 0 {
		return domain.Customer{}, domain.ErrInvalidInput
	}

	result := r.query(ctx).Where("customer_id = ?", id).Updates(map[string]any{
		"order_count":  gorm.Expr("order_count + 1"),
		"total_spent":  gorm.Expr("total_spent + ?", amount),
		"last_updated": timestamp(),
	})
	if result.Error != nil {
		return domain.Customer{}, storageError("record order", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}

	return r.FindByID(ctx, id)
}

// timestamp truncates to the microsecond precision of postgres timestamps.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func toDomainCustomer(m models.Customer) domain.Customer {
	return domain.Customer{
		ID:          m.ID,
		UserID:      m.UserID,
		Email:       m.Email,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		GuestKey:    m.GuestKey,
		Registered:  m.Registered,
		OrderCount:  m.OrderCount,
		TotalSpent:  m.TotalSpent,
		LastUpdated: m.LastUpdated,
	}
}
