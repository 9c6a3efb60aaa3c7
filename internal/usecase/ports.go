package usecase

import (
	"context"

	"github.com/totegamma/customeradmin/internal/domain"
)

// CustomerRepository defines persistence for customer records.
type CustomerRepository interface {
	Insert(ctx context.Context, draft domain.CustomerDraft) (domain.Customer, error)
	FindByID(ctx context.Context, id int64) (domain.Customer, error)
	FindByUserID(ctx context.Context, userID int64) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, q domain.ListQuery) ([]domain.Customer, error)
	Update(ctx context.Context, id int64, update domain.CustomerUpdate) (domain.Customer, error)
	RecordOrder(ctx context.Context, id int64, amount float64) (domain.Customer, error)
}

// MetaRepository defines persistence for customer metadata.
type MetaRepository interface {
	Add(ctx context.Context, customerID int64, key, value string, unique bool) (int64, bool, error)
	GetSingle(ctx context.Context, customerID int64, key string) (string, error)
	GetAllForKey(ctx context.Context, customerID int64, key string) ([]string, error)
	GetAll(ctx context.Context, customerID int64) (map[string][]string, error)
	Update(ctx context.Context, customerID int64, key, value, prevValue string) (bool, error)
	Delete(ctx context.Context, customerID int64, key string) (bool, error)
	DeleteValue(ctx context.Context, customerID int64, key, value string) (bool, error)
	DeleteCustom(ctx context.Context, customerID int64) (int64, error)
}

// AccountProvider is the host platform's identity service.
type AccountProvider interface {
	CurrentAccountID(ctx context.Context) (int64, bool)
	MarkCustomer(ctx context.Context, accountID int64) error
}

// EventPublisher fans customer changes out to listeners.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event domain.CustomerEvent) error
}
