package usecase

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/blake2b"

	"github.com/totegamma/customeradmin/internal/domain"
	"github.com/totegamma/customeradmin/internal/utils"
)

var tracer = otel.Tracer("usecase")

// CreateCustomerInput is the input of a customer creation. UserID 0 creates
// a guest customer.
type CreateCustomerInput struct {
	UserID    int64  `json:"userID" validate:"gte=0"`
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"firstName" validate:"max=255"`
	LastName  string `json:"lastName" validate:"max=255"`
	GuestKey  string `json:"guestKey" validate:"max=64"`
}

// CreateCustomerResult carries the new customer. RoleSyncErr is set when
// the account role update failed; the customer is created regardless.
type CreateCustomerResult struct {
	Customer    domain.Customer
	RoleSyncErr error
}

type CustomerUsecase struct {
	repo           CustomerRepository
	meta           MetaRepository
	accounts       AccountProvider
	events         EventPublisher
	guestKeySecret []byte
}

func NewCustomerUsecase(
	repo CustomerRepository,
	meta MetaRepository,
	accounts AccountProvider,
	events EventPublisher,
	guestKeySecret string,
) *CustomerUsecase {
	secret := []byte(guestKeySecret)
	if len(secret) > blake2b.Size {
		sum := blake2b.Sum512(secret)
		secret = sum[:]
	}
	return &CustomerUsecase{
		repo:           repo,
		meta:           meta,
		accounts:       accounts,
		events:         events,
		guestKeySecret: secret,
	}
}

// ResolveCustomerID returns the customer linked to userID. A zero userID
// stands for the calling account.
func (uc *CustomerUsecase) ResolveCustomerID(ctx context.Context, userID int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.ResolveCustomerID")
	defer span.End()

	if userID <= 0 {
		if uc.accounts == nil {
			return 0, domain.NotFoundError{Resource: "customer"}
		}
		current, ok := uc.accounts.CurrentAccountID(ctx)
		if !ok {
			return 0, domain.NotFoundError{Resource: "customer"}
		}
		userID = current
	}
	span.SetAttributes(attribute.Int64("UserID", userID))

	customer, err := uc.repo.FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return customer.ID, nil
}

func (uc *CustomerUsecase) ResolveCustomerByEmail(ctx context.Context, email string) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.ResolveCustomerByEmail")
	defer span.End()

	return uc.repo.FindByEmail(ctx, NormalizeEmail(email))
}

// HasExistingCustomer reports whether a customer exists for the identity.
func (uc *CustomerUsecase) HasExistingCustomer(ctx context.Context, identity domain.Identity) (bool, error) {
	var err error
	switch {
	case identity.IsUser():
		_, err = uc.ResolveCustomerID(ctx, identity.UserID)
	case identity.IsEmail():
		if NormalizeEmail(identity.Email) == "" {
			return false, nil
		}
		_, err = uc.ResolveCustomerByEmail(ctx, identity.Email)
	default:
		return false, domain.ErrInvalidInput
	}
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (uc *CustomerUsecase) Create(ctx context.Context, input CreateCustomerInput) (CreateCustomerResult, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Create")
	defer span.End()

	input.Email = NormalizeEmail(input.Email)
	if err := validateStruct(input); err != nil {
		span.RecordError(err)
		return CreateCustomerResult{}, err
	}

	// the unique indexes decide; these checks only return early
	if input.UserID > 0 {
		exists, err := uc.HasExistingCustomer(ctx, domain.UserIdentity(input.UserID))
		if err != nil {
			span.RecordError(err)
			return CreateCustomerResult{}, errors.Wrap(err, "check existing user")
		}
		if exists {
			return CreateCustomerResult{}, domain.ErrDuplicateUser
		}
	}

	exists, err := uc.HasExistingCustomer(ctx, domain.EmailIdentity(input.Email))
	if err != nil {
		span.RecordError(err)
		return CreateCustomerResult{}, errors.Wrap(err, "check existing email")
	}
	if exists {
		return CreateCustomerResult{}, domain.ErrDuplicateEmail
	}

	draft := domain.CustomerDraft{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		GuestKey:  input.GuestKey,
	}
	if input.UserID > 0 {
		userID := input.UserID
		draft.UserID = &userID
	} else if draft.GuestKey == "" {
		draft.GuestKey = uc.guestKey(input.Email)
	}

	customer, err := uc.repo.Insert(ctx, draft)
	if err != nil {
		span.RecordError(err)
		return CreateCustomerResult{}, err
	}
	span.SetAttributes(attribute.Int64("CustomerID", customer.ID))

	result := CreateCustomerResult{Customer: customer}

	if input.UserID > 0 && uc.accounts != nil {
		if err := uc.accounts.MarkCustomer(ctx, input.UserID); err != nil {
			span.RecordError(errors.Wrap(err, "Customer.Usecase.Create: role sync failed"))
			slog.WarnContext(
				ctx, "account role sync failed",
				slog.Int64("customer", customer.ID),
				slog.Int64("user", input.UserID),
				slog.String("error", err.Error()),
				slog.String("module", "customer"),
			)
			result.RoleSyncErr = err
		}
	}

	uc.publish(ctx, domain.CustomerEvent{
		Type:       domain.EventCustomerCreated,
		CustomerID: customer.ID,
		UserID:     input.UserID,
	})

	slog.InfoContext(
		ctx, "customer created",
		slog.Int64("customer", customer.ID),
		slog.String("type", string(customer.Type())),
		slog.String("module", "customer"),
	)

	return result, nil
}

// guestKey derives a stable lookup key for a guest from its email.
func (uc *CustomerUsecase) guestKey(email string) string {
	h, err := blake2b.New256(uc.guestKeySecret)
	if err != nil {
		// unreachable: the secret is capped at blake2b.Size
		panic(err)
	}
	h.Write([]byte(email))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// ClassifyCustomerType returns registered or guest for the customer holding
// email, or a NotFoundError when there is none.
func (uc *CustomerUsecase) ClassifyCustomerType(ctx context.Context, email string) (domain.CustomerType, error) {
	customer, err := uc.ResolveCustomerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return customer.Type(), nil
}

func (uc *CustomerUsecase) DefaultMetaKeys() utils.OrderedKVMap[string] {
	return domain.DefaultMetaKeys()
}

func (uc *CustomerUsecase) Get(ctx context.Context, id int64) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Get")
	defer span.End()

	return uc.repo.FindByID(ctx, id)
}

func (uc *CustomerUsecase) Count(ctx context.Context) (int64, error) {
	return uc.repo.Count(ctx)
}

func (uc *CustomerUsecase) List(ctx context.Context, q domain.ListQuery) (domain.CustomerPage, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.List")
	defer span.End()

	total, err := uc.repo.Count(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.CustomerPage{}, err
	}

	items := []domain.Customer{}
	if total > int64(q.Offset) {
		items, err = uc.repo.List(ctx, q)
		if err != nil {
			span.RecordError(err)
			return domain.CustomerPage{}, err
		}
	}

	return domain.CustomerPage{Items: items, Total: total}, nil
}

func (uc *CustomerUsecase) Update(ctx context.Context, id int64, update domain.CustomerUpdate) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Update")
	defer span.End()

	if update.Empty() {
		return uc.repo.FindByID(ctx, id)
	}

	if update.Email != nil {
		email := NormalizeEmail(*update.Email)
		if err := validateEmail(email); err != nil {
			return domain.Customer{}, err
		}
		update.Email = &email

		existing, err := uc.repo.FindByEmail(ctx, email)
		if err == nil && existing.ID != id {
			return domain.Customer{}, domain.ErrDuplicateEmail
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			return domain.Customer{}, err
		}
	}

	customer, err := uc.repo.Update(ctx, id, update)
	if err != nil {
		span.RecordError(err)
		return domain.Customer{}, err
	}

	uc.publish(ctx, domain.CustomerEvent{Type: domain.EventCustomerUpdated, CustomerID: id})
	return customer, nil
}

// RecordOrder stores one completed order reported by the order subsystem.
func (uc *CustomerUsecase) RecordOrder(ctx context.Context, id int64, amount float64) (domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.RecordOrder")
	defer span.End()

	customer, err := uc.repo.RecordOrder(ctx, id, amount)
	if err != nil {
		span.RecordError(err)
		return domain.Customer{}, err
	}

	uc.publish(ctx, domain.CustomerEvent{Type: domain.EventCustomerUpdated, CustomerID: id})
	return customer, nil
}

// Profile assembles the detail view: default keys first in table order,
// then custom keys by name.
func (uc *CustomerUsecase) Profile(ctx context.Context, id int64) (domain.CustomerProfile, error) {
	ctx, span := tracer.Start(ctx, "Customer.Usecase.Profile")
	defer span.End()

	customer, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return domain.CustomerProfile{}, err
	}

	all, err := uc.meta.GetAll(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.CustomerProfile{}, err
	}

	meta := make([]domain.LabeledMeta, 0, len(all)+len(domain.DefaultMetaKeyNames()))
	for _, key := range domain.DefaultMetaKeyNames() {
		values := all[key]
		if values == nil {
			values = []string{}
		}
		meta = append(meta, domain.LabeledMeta{
			Key:     key,
			Label:   domain.MetaKeyLabel(key),
			Values:  values,
			Default: true,
		})
	}

	custom := make([]string, 0, len(all))
	for key := range all {
		if !domain.IsDefaultMetaKey(key) {
			custom = append(custom, key)
		}
	}
	sort.Strings(custom)
	for _, key := range custom {
		meta = append(meta, domain.LabeledMeta{
			Key:    key,
			Label:  domain.MetaKeyLabel(key),
			Values: all[key],
		})
	}

	var phone string
	if values := all[domain.BillingPhoneKey]; len(values) > 0 {
		phone = values[0]
	}

	return domain.CustomerProfile{
		Customer:     customer,
		Name:         customer.Name(),
		Type:         customer.Type(),
		BillingPhone: phone,
		Meta:         meta,
	}, nil
}

func (uc *CustomerUsecase) publish(ctx context.Context, event domain.CustomerEvent) {
	publishEvent(ctx, uc.events, event)
}

func publishEvent(ctx context.Context, events EventPublisher, event domain.CustomerEvent) {
	if events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := events.Publish(ctx, domain.ChannelCustomerEvents, event); err != nil {
		slog.DebugContext(
			ctx, "failed to publish customer event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
			slog.String("module", "customer"),
		)
	}
}
