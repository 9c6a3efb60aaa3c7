package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/totegamma/customeradmin/internal/config"
	"github.com/totegamma/customeradmin/internal/domain"
	"github.com/totegamma/customeradmin/internal/infra/database"
)

func setupTestDB(t *testing.T, store config.Store) *gorm.DB {
	t.Helper()

	// a named shared-cache memory database per test
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := database.NewSqlite(dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, store))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func ptr[T any](v T) *T { return &v }

func TestCustomerInsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	guest, err := repo.Insert(ctx, domain.CustomerDraft{Email: "a@x.com", FirstName: "A", LastName: "X"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), guest.ID)
	assert.Nil(t, guest.UserID)
	assert.False(t, guest.Registered.IsZero())

	registered, err := repo.Insert(ctx, domain.CustomerDraft{UserID: ptr(int64(7)), Email: "b@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), registered.ID)

	found, err := repo.FindByUserID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, found.ID)
	assert.True(t, found.IsRegistered())

	found, err = repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, guest.ID, found.ID)
	assert.Equal(t, "A X", found.Name())

	found, err = repo.FindByID(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", found.Email)

	_, err = repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindByUserID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCustomerInsertZeroUserIDIsGuest(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	// several guests may coexist; a zero user id is stored as NULL
	_, err := repo.Insert(ctx, domain.CustomerDraft{UserID: ptr(int64(0)), Email: "g1@x.com"})
	require.NoError(t, err)
	c, err := repo.Insert(ctx, domain.CustomerDraft{Email: "g2@x.com"})
	require.NoError(t, err)
	assert.Nil(t, c.UserID)
}

func TestCustomerInsertUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	_, err := repo.Insert(ctx, domain.CustomerDraft{UserID: ptr(int64(7)), Email: "b@x.com"})
	require.NoError(t, err)

	_, err = repo.Insert(ctx, domain.CustomerDraft{UserID: ptr(int64(7)), Email: "c@x.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateUser)

	_, err = repo.Insert(ctx, domain.CustomerDraft{Email: "b@x.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCustomerInsertConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		dupUsers int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Insert(ctx, domain.CustomerDraft{
				UserID: ptr(int64(42)),
				Email:  fmt.Sprintf("user%d@x.com", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, domain.ErrDuplicateUser):
				dupUsers++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, dupUsers)
}

func TestCustomerInsertConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		dupEmails int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			draft := domain.CustomerDraft{Email: "shared@x.com"}
			// half registered, half guests
			if i%2 == 0 {
				draft.UserID = ptr(int64(100 + i))
			}
			_, err := repo.Insert(ctx, draft)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, domain.ErrDuplicateEmail):
				dupEmails++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, dupEmails)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCustomerListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	names := []string{"Carol", "alice", "Bob", "Dave", "Eve"}
	for i, n := range names {
		_, err := repo.Insert(ctx, domain.CustomerDraft{Email: fmt.Sprintf("%d@x.com", i), FirstName: n, LastName: "Z"})
		require.NoError(t, err)
	}

	first, err := repo.List(ctx, domain.ListQuery{Offset: 0, Limit: 2})
	require.NoError(t, err)
	second, err := repo.List(ctx, domain.ListQuery{Offset: 2, Limit: 2})
	require.NoError(t, err)
	third, err := repo.List(ctx, domain.ListQuery{Offset: 4, Limit: 2})
	require.NoError(t, err)

	var ids []int64
	for _, page := range [][]domain.Customer{first, second, third} {
		for _, c := range page {
			ids = append(ids, c.ID)
		}
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

	desc, err := repo.List(ctx, domain.ListQuery{Limit: 10, OrderBy: domain.SortByID, Direction: domain.SortDesc})
	require.NoError(t, err)
	require.Len(t, desc, 5)
	assert.Equal(t, int64(5), desc[0].ID)

	byEmail, err := repo.List(ctx, domain.ListQuery{Limit: 1, OrderBy: domain.SortByEmail, Direction: domain.SortDesc})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "4@x.com", byEmail[0].Email)

	_, err = repo.List(ctx, domain.ListQuery{Limit: 10, OrderBy: domain.SortField("email; DROP TABLE customers")})
	assert.ErrorIs(t, err, domain.ErrInvalidSort)
	_, err = repo.List(ctx, domain.ListQuery{Limit: 10, Direction: domain.SortDirection("sideways")})
	assert.ErrorIs(t, err, domain.ErrInvalidSort)
	_, err = repo.List(ctx, domain.ListQuery{Limit: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCustomerUpdateKeepsRegistered(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	c, err := repo.Insert(ctx, domain.CustomerDraft{Email: "a@x.com", FirstName: "A"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, domain.CustomerDraft{Email: "taken@x.com"})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, c.ID, domain.CustomerUpdate{FirstName: ptr("Ada"), Email: ptr("ada@x.com")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.Equal(t, "ada@x.com", updated.Email)
	assert.True(t, updated.Registered.Equal(c.Registered))
	assert.False(t, updated.LastUpdated.Before(c.LastUpdated))

	_, err = repo.Update(ctx, c.ID, domain.CustomerUpdate{Email: ptr("taken@x.com")})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = repo.Update(ctx, 99, domain.CustomerUpdate{FirstName: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCustomerRecordOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	c, err := repo.Insert(ctx, domain.CustomerDraft{Email: "a@x.com"})
	require.NoError(t, err)

	_, err = repo.RecordOrder(ctx, c.ID, 10.5)
	require.NoError(t, err)
	c, err = repo.RecordOrder(ctx, c.ID, 4.5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.OrderCount)
	assert.InDelta(t, 15.0, c.TotalSpent, 0.001)

	_, err = repo.RecordOrder(ctx, c.ID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = repo.RecordOrder(ctx, 99, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCustomerCustomTableNames(t *testing.T) {
	ctx := context.Background()
	store := config.Store{CustomerTable: "wc_customers", MetaTable: "wc_customermeta"}
	db := setupTestDB(t, store)

	customers := NewCustomerRepository(db, store)
	meta := NewMetaRepository(db, store)

	c, err := customers.Insert(ctx, domain.CustomerDraft{Email: "a@x.com"})
	require.NoError(t, err)
	_, added, err := meta.Add(ctx, c.ID, "custom_note", "x", false)
	require.NoError(t, err)
	assert.True(t, added)

	assert.True(t, db.Migrator().HasTable("wc_customers"))
	assert.True(t, db.Migrator().HasTable("wc_customermeta"))
	assert.False(t, db.Migrator().HasTable("customers"))
}

func TestMetaScenarios(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	// multiple values per key
	_, added, err := repo.Add(ctx, 1, "billing_city", "Lagos", false)
	require.NoError(t, err)
	assert.True(t, added)
	_, added, err = repo.Add(ctx, 1, "billing_city", "Abuja", false)
	require.NoError(t, err)
	assert.True(t, added)

	values, err := repo.GetAllForKey(ctx, 1, "billing_city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lagos", "Abuja"}, values)

	single, err := repo.GetSingle(ctx, 1, "billing_city")
	require.NoError(t, err)
	assert.Equal(t, "Lagos", single)

	// protected key
	deleted, err := repo.Delete(ctx, 1, "billing_city")
	assert.False(t, deleted)
	assert.ErrorIs(t, err, domain.ErrProtectedKey)
	values, err = repo.GetAllForKey(ctx, 1, "billing_city")
	require.NoError(t, err)
	assert.Len(t, values, 2)

	// custom key
	_, _, err = repo.Add(ctx, 1, "custom_note", "x", false)
	require.NoError(t, err)
	deleted, err = repo.Delete(ctx, 1, "custom_note")
	require.NoError(t, err)
	assert.True(t, deleted)

	values, err = repo.GetAllForKey(ctx, 1, "custom_note")
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.NotNil(t, values)
	single, err = repo.GetSingle(ctx, 1, "custom_note")
	require.NoError(t, err)
	assert.Equal(t, "", single)

	deleted, err = repo.Delete(ctx, 1, "custom_note")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMetaAddUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	id, added, err := repo.Add(ctx, 1, "k", "v1", true)
	require.NoError(t, err)
	assert.True(t, added)
	assert.NotZero(t, id)

	id, added, err = repo.Add(ctx, 1, "k", "v2", true)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Zero(t, id)

	values, err := repo.GetAllForKey(ctx, 1, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, values)

	// uniqueness is scoped by owner
	_, added, err = repo.Add(ctx, 2, "k", "v1", true)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestMetaAddUniqueConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := repo.Add(ctx, 1, "k", fmt.Sprintf("v%d", i), true)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	values, err := repo.GetAllForKey(ctx, 1, "k")
	require.NoError(t, err)
	assert.Len(t, values, 1)
}

func TestMetaAddLocksOnlyUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	var locked []int64
	repo.lock = func(tx *gorm.DB, key int64) error {
		locked = append(locked, key)
		return nil
	}

	_, added, err := repo.Add(ctx, 1, "billing_city", "Lagos", false)
	require.NoError(t, err)
	assert.True(t, added)
	_, added, err = repo.Add(ctx, 1, "billing_city", "Abuja", false)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Empty(t, locked)

	_, added, err = repo.Add(ctx, 1, "custom_note", "x", true)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []int64{lockKey(repo.table, 1, "custom_note")}, locked)

	// a failed lock aborts the write
	repo.lock = func(tx *gorm.DB, key int64) error {
		return errors.New("lock timeout")
	}
	_, _, err = repo.Add(ctx, 1, "other_note", "y", true)
	assert.ErrorIs(t, err, domain.ErrStorage)
	values, err := repo.GetAllForKey(ctx, 1, "other_note")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestMetaGetAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	_, _, err := repo.Add(ctx, 1, "billing_city", "Lagos", false)
	require.NoError(t, err)
	_, _, err = repo.Add(ctx, 1, "_money_spent", "12.50", false)
	require.NoError(t, err)
	_, _, err = repo.Add(ctx, 1, "billing_city", "Abuja", false)
	require.NoError(t, err)
	_, _, err = repo.Add(ctx, 2, "billing_city", "Accra", false)
	require.NoError(t, err)

	all, err := repo.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"billing_city": {"Lagos", "Abuja"},
		"_money_spent": {"12.50"},
	}, all)

	empty, err := repo.GetAll(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMetaUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	// absent key without a previous value is added
	ok, err := repo.Update(ctx, 1, "billing_city", "Lagos", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Update(ctx, 1, "billing_city", "Abuja", "")
	require.NoError(t, err)
	assert.True(t, ok)
	values, err := repo.GetAllForKey(ctx, 1, "billing_city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Abuja"}, values)

	// mismatched previous value changes nothing
	ok, err = repo.Update(ctx, 1, "billing_city", "Kano", "Lagos")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Update(ctx, 1, "billing_city", "Kano", "Abuja")
	require.NoError(t, err)
	assert.True(t, ok)

	// several rows require a previous value
	_, _, err = repo.Add(ctx, 1, "billing_city", "Ibadan", false)
	require.NoError(t, err)
	ok, err = repo.Update(ctx, 1, "billing_city", "Jos", "")
	assert.ErrorIs(t, err, domain.ErrAmbiguousMeta)
	assert.False(t, ok)

	ok, err = repo.Update(ctx, 1, "billing_city", "Jos", "Ibadan")
	require.NoError(t, err)
	assert.True(t, ok)
	values, err = repo.GetAllForKey(ctx, 1, "billing_city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Kano", "Jos"}, values)
}

func TestMetaDeleteCustomAndValue(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(setupTestDB(t, config.DefaultStore()), config.DefaultStore())

	for _, kv := range [][2]string{
		{"billing_city", "Lagos"},
		{"shipping_state", "LA"},
		{"custom_note", "a"},
		{"custom_note", "b"},
		{"_money_spent", "1"},
	} {
		_, _, err := repo.Add(ctx, 1, kv[0], kv[1], false)
		require.NoError(t, err)
	}

	ok, err := repo.DeleteValue(ctx, 1, "custom_note", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = repo.DeleteValue(ctx, 1, "billing_city", "Lagos")
	assert.ErrorIs(t, err, domain.ErrProtectedKey)

	n, err := repo.DeleteCustom(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := repo.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"billing_city":   {"Lagos"},
		"shipping_state": {"LA"},
	}, all)
}

func TestUniqueViolationClassification(t *testing.T) {
	kind, ok := uniqueViolation(fmt.Errorf("constraint failed: UNIQUE constraint failed: customers.user_id (2067)"))
	assert.True(t, ok)
	assert.Equal(t, domain.DuplicateUser, kind)

	kind, ok = uniqueViolation(fmt.Errorf("UNIQUE constraint failed: customers.email"))
	assert.True(t, ok)
	assert.Equal(t, domain.DuplicateEmail, kind)

	// the table name must not leak into the column match
	kind, ok = uniqueViolation(fmt.Errorf("UNIQUE constraint failed: email_user_id_customers.email (2067)"))
	assert.True(t, ok)
	assert.Equal(t, domain.DuplicateEmail, kind)

	kind, ok = uniqueViolation(fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey))
	assert.True(t, ok)
	assert.Equal(t, domain.DuplicateUnknown, kind)

	_, ok = uniqueViolation(fmt.Errorf("connection reset"))
	assert.False(t, ok)
	_, ok = uniqueViolation(nil)
	assert.False(t, ok)
}

func TestUniqueViolationPgError(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		kind      domain.DuplicateKind
		violation bool
	}{
		{"email", &pgconn.PgError{Code: "23505", ConstraintName: "shop2_customers_email_key"}, domain.DuplicateEmail, true},
		{"user", &pgconn.PgError{Code: "23505", ConstraintName: "customers_user_id_key"}, domain.DuplicateUser, true},
		{"primary key", &pgconn.PgError{Code: "23505", ConstraintName: "customers_pkey"}, domain.DuplicateUnknown, true},
		{"not null", &pgconn.PgError{Code: "23502", ColumnName: "email"}, domain.DuplicateUnknown, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := uniqueViolation(errors.Wrap(tc.err, "insert"))
			assert.Equal(t, tc.violation, ok)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestMigrateTwoStoresOneDatabase(t *testing.T) {
	ctx := context.Background()
	first := config.DefaultStore()
	second := config.Store{CustomerTable: "shop2_customers", MetaTable: "shop2_customermeta"}

	db := setupTestDB(t, first)
	require.NoError(t, database.Migrate(db, second))
	// re-running is a no-op
	require.NoError(t, database.Migrate(db, first))

	for _, idx := range []struct{ table, name string }{
		{"customers", "customers_email_key"},
		{"customers", "customers_user_id_key"},
		{"shop2_customers", "shop2_customers_email_key"},
		{"shop2_customers", "shop2_customers_user_id_key"},
		{"shop2_customermeta", "shop2_customermeta_meta_key"},
	} {
		assert.True(t, db.Migrator().HasIndex(idx.table, idx.name), idx.name)
	}

	repos := []*CustomerRepository{
		NewCustomerRepository(db, first),
		NewCustomerRepository(db, second),
	}
	for _, repo := range repos {
		_, err := repo.Insert(ctx, domain.CustomerDraft{UserID: ptr(int64(1)), Email: "a@x.com"})
		require.NoError(t, err, repo.table)

		_, err = repo.Insert(ctx, domain.CustomerDraft{Email: "a@x.com"})
		assert.ErrorIs(t, err, domain.ErrDuplicateEmail, repo.table)

		_, err = repo.Insert(ctx, domain.CustomerDraft{UserID: ptr(int64(1)), Email: "b@x.com"})
		assert.ErrorIs(t, err, domain.ErrDuplicateUser, repo.table)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, repo.table)
	}
}

func TestLockKeyStable(t *testing.T) {
	assert.Equal(t, lockKey("customermeta", 1, "k"), lockKey("customermeta", 1, "k"))
	assert.NotEqual(t, lockKey("customermeta", 1, "k"), lockKey("customermeta", 2, "k"))
	assert.NotEqual(t, lockKey("customermeta", 1, "k"), lockKey("customermeta", 1, "j"))
}
