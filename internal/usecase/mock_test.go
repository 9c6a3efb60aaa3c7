package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/totegamma/customeradmin/internal/domain"
)

type mockCustomerRepo struct {
	mu        sync.Mutex
	nextID    int64
	customers map[int64]domain.Customer
	inserts   int
	// insertErr is returned from Insert when set, after the pre-checks passed
	insertErr error
}

func newMockCustomerRepo() *mockCustomerRepo {
	return &mockCustomerRepo{customers: map[int64]domain.Customer{}}
}

func (m *mockCustomerRepo) Insert(ctx context.Context, draft domain.CustomerDraft) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return domain.Customer{}, m.insertErr
	}
	m.nextID++
	c := domain.Customer{
		ID:        m.nextID,
		UserID:    draft.UserID,
		Email:     draft.Email,
		FirstName: draft.FirstName,
		LastName:  draft.LastName,
		GuestKey:  draft.GuestKey,
	}
	m.customers[c.ID] = c
	return c, nil
}

func (m *mockCustomerRepo) FindByID(ctx context.Context, id int64) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}
	return c, nil
}

func (m *mockCustomerRepo) FindByUserID(ctx context.Context, userID int64) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.UserID != nil && *c.UserID == userID {
			return c, nil
		}
	}
	return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
}

func (m *mockCustomerRepo) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
}

func (m *mockCustomerRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.customers)), nil
}

func (m *mockCustomerRepo) List(ctx context.Context, q domain.ListQuery) ([]domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.customers))
	for id := range m.customers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []domain.Customer{}
	for i := q.Offset; i < len(ids) && len(out) < q.Limit; i++ {
		out = append(out, m.customers[ids[i]])
	}
	return out, nil
}

func (m *mockCustomerRepo) Update(ctx context.Context, id int64, update domain.CustomerUpdate) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}
	if update.Email != nil {
		c.Email = *update.Email
	}
	if update.FirstName != nil {
		c.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		c.LastName = *update.LastName
	}
	m.customers[id] = c
	return c, nil
}

func (m *mockCustomerRepo) RecordOrder(ctx context.Context, id int64, amount float64) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.NotFoundError{Resource: "customer"}
	}
	c.OrderCount++
	c.TotalSpent += amount
	m.customers[id] = c
	return c, nil
}

type mockMetaRepo struct {
	values map[int64]map[string][]string
	nextID int64
}

func newMockMetaRepo() *mockMetaRepo {
	return &mockMetaRepo{values: map[int64]map[string][]string{}}
}

func (m *mockMetaRepo) Add(ctx context.Context, customerID int64, key, value string, unique bool) (int64, bool, error) {
	if m.values[customerID] == nil {
		m.values[customerID] = map[string][]string{}
	}
	if unique && len(m.values[customerID][key]) > 0 {
		return 0, false, nil
	}
	m.nextID++
	m.values[customerID][key] = append(m.values[customerID][key], value)
	return m.nextID, true, nil
}

func (m *mockMetaRepo) GetSingle(ctx context.Context, customerID int64, key string) (string, error) {
	if v := m.values[customerID][key]; len(v) > 0 {
		return v[0], nil
	}
	return "", nil
}

func (m *mockMetaRepo) GetAllForKey(ctx context.Context, customerID int64, key string) ([]string, error) {
	return append([]string{}, m.values[customerID][key]...), nil
}

func (m *mockMetaRepo) GetAll(ctx context.Context, customerID int64) (map[string][]string, error) {
	out := map[string][]string{}
	for k, v := range m.values[customerID] {
		out[k] = append([]string{}, v...)
	}
	return out, nil
}

func (m *mockMetaRepo) Update(ctx context.Context, customerID int64, key, value, prevValue string) (bool, error) {
	values := m.values[customerID][key]
	if prevValue == "" {
		if len(values) > 1 {
			return false, domain.ErrAmbiguousMeta
		}
		if len(values) == 0 {
			_, added, err := m.Add(ctx, customerID, key, value, false)
			return added, err
		}
		values[0] = value
		return true, nil
	}
	changed := false
	for i, v := range values {
		if v == prevValue {
			values[i] = value
			changed = true
		}
	}
	return changed, nil
}

func (m *mockMetaRepo) Delete(ctx context.Context, customerID int64, key string) (bool, error) {
	if domain.IsDefaultMetaKey(key) {
		return false, domain.ProtectedKeyError{Key: key}
	}
	_, ok := m.values[customerID][key]
	delete(m.values[customerID], key)
	return ok, nil
}

func (m *mockMetaRepo) DeleteValue(ctx context.Context, customerID int64, key, value string) (bool, error) {
	values := m.values[customerID][key]
	if len(values) == 0 {
		return false, nil
	}
	kept := values[:0]
	for _, v := range values {
		if v != value {
			kept = append(kept, v)
		}
	}
	removed := len(kept) != len(values)
	m.values[customerID][key] = kept
	return removed, nil
}

func (m *mockMetaRepo) DeleteCustom(ctx context.Context, customerID int64) (int64, error) {
	var n int64
	for k, v := range m.values[customerID] {
		if !domain.IsDefaultMetaKey(k) {
			n += int64(len(v))
			delete(m.values[customerID], k)
		}
	}
	return n, nil
}

type mockAccounts struct {
	current int64
	marked  []int64
	markErr error
}

func (m *mockAccounts) CurrentAccountID(ctx context.Context) (int64, bool) {
	return m.current, m.current > 0
}

func (m *mockAccounts) MarkCustomer(ctx context.Context, accountID int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, accountID)
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.CustomerEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, event domain.CustomerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if channel != domain.ChannelCustomerEvents {
		return errors.New("unexpected channel " + channel)
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}
