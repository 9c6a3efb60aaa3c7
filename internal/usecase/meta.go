package usecase

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/customeradmin/internal/domain"
)

// MetaUsecase exposes the customer metadata store for existing customers.
type MetaUsecase struct {
	customers CustomerRepository
	repo      MetaRepository
	events    EventPublisher
}

func NewMetaUsecase(customers CustomerRepository, repo MetaRepository, events EventPublisher) *MetaUsecase {
	return &MetaUsecase{customers: customers, repo: repo, events: events}
}

func (uc *MetaUsecase) ensureCustomer(ctx context.Context, customerID int64) error {
	_, err := uc.customers.FindByID(ctx, customerID)
	return err
}

func (uc *MetaUsecase) Add(ctx context.Context, customerID int64, key, value string, unique bool) (int64, bool, error) {
	ctx, span := tracer.Start(ctx, "Meta.Usecase.Add")
	defer span.End()
	span.SetAttributes(attribute.Int64("CustomerID", customerID), attribute.String("Key", key))

	if err := validateMetaKey(key); err != nil {
		return 0, false, err
	}
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return 0, false, err
	}

	id, added, err := uc.repo.Add(ctx, customerID, key, value, unique)
	if err != nil {
		span.RecordError(err)
		return 0, false, err
	}
	if added {
		publishEvent(ctx, uc.events, domain.CustomerEvent{Type: domain.EventMetaUpdated, CustomerID: customerID, Key: key})
	}
	return id, added, nil
}

func (uc *MetaUsecase) GetSingle(ctx context.Context, customerID int64, key string) (string, error) {
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return "", err
	}
	return uc.repo.GetSingle(ctx, customerID, key)
}

func (uc *MetaUsecase) GetAllForKey(ctx context.Context, customerID int64, key string) ([]string, error) {
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return uc.repo.GetAllForKey(ctx, customerID, key)
}

func (uc *MetaUsecase) GetAll(ctx context.Context, customerID int64) (map[string][]string, error) {
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return uc.repo.GetAll(ctx, customerID)
}

func (uc *MetaUsecase) Update(ctx context.Context, customerID int64, key, value, prevValue string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Meta.Usecase.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("CustomerID", customerID), attribute.String("Key", key))

	if err := validateMetaKey(key); err != nil {
		return false, err
	}
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return false, err
	}

	updated, err := uc.repo.Update(ctx, customerID, key, value, prevValue)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if updated {
		publishEvent(ctx, uc.events, domain.CustomerEvent{Type: domain.EventMetaUpdated, CustomerID: customerID, Key: key})
	}
	return updated, nil
}

// Delete removes a custom key. Default keys are refused with a
// ProtectedKeyError before the store is touched.
func (uc *MetaUsecase) Delete(ctx context.Context, customerID int64, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Meta.Usecase.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("CustomerID", customerID), attribute.String("Key", key))

	if domain.IsDefaultMetaKey(key) {
		return false, domain.ProtectedKeyError{Key: key}
	}
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return false, err
	}

	deleted, err := uc.repo.Delete(ctx, customerID, key)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if deleted {
		publishEvent(ctx, uc.events, domain.CustomerEvent{Type: domain.EventMetaDeleted, CustomerID: customerID, Key: key})
	}
	return deleted, nil
}

func (uc *MetaUsecase) DeleteValue(ctx context.Context, customerID int64, key, value string) (bool, error) {
	if domain.IsDefaultMetaKey(key) {
		return false, domain.ProtectedKeyError{Key: key}
	}
	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return false, err
	}

	deleted, err := uc.repo.DeleteValue(ctx, customerID, key, value)
	if err != nil {
		return false, err
	}
	if deleted {
		publishEvent(ctx, uc.events, domain.CustomerEvent{Type: domain.EventMetaDeleted, CustomerID: customerID, Key: key})
	}
	return deleted, nil
}

// DeleteCustom clears every non-default key of the customer.
func (uc *MetaUsecase) DeleteCustom(ctx context.Context, customerID int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "Meta.Usecase.DeleteCustom")
	defer span.End()

	if err := uc.ensureCustomer(ctx, customerID); err != nil {
		return 0, err
	}

	n, err := uc.repo.DeleteCustom(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if n > 0 {
		publishEvent(ctx, uc.events, domain.CustomerEvent{Type: domain.EventMetaDeleted, CustomerID: customerID})
	}
	return n, nil
}
