package repair

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "ridebook/db/db"
	"ridebook/db/mem"
	"ridebook/errs"
	"ridebook/logger"
)

func setupTest(t *testing.T, ids ...int64) *mem.InMemoryRideDBWrapper {
	t.Helper()
	store := mem.NewInMemoryRideDBWrapper()
	for _, id := range ids {
		user := &dbt.User{ID: id, Username: "user", Role: dbt.RoleCustomer, Balance: decimal.RequireFromString("5.00")}
		require.NoError(t, store.CreateUser(context.Background(), user))
	}
	return store
}

func setRaw(t *testing.T, store dbt.RideDBWrapper, values map[int64]string) {
	t.Helper()
	require.NoError(t, store.RawBalanceWrite(context.Background(), values))
}

func rawOf(t *testing.T, store dbt.RideDBWrapper, id int64) *string {
	t.Helper()
	rows, err := store.RawBalanceList(context.Background())
	require.NoError(t, err)
	for _, row := range rows {
		if row.UserID == id {
			return row.Value
		}
	}
	t.Fatalf("user %d not in raw list", id)
	return nil
}

// failingWriteStore refuses raw writes.
type failingWriteStore struct {
	*mem.InMemoryRideDBWrapper
}

func (s failingWriteStore) RawBalanceWrite(context.Context, map[int64]string) error {
	return errors.New("disk full")
}

// ignoringWriteStore reports success without writing anything.
type ignoringWriteStore struct {
	*mem.InMemoryRideDBWrapper
}

func (s ignoringWriteStore) RawBalanceWrite(context.Context, map[int64]string) error {
	return nil
}

func TestGetUserSafe(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy balance", func(t *testing.T) {
		store := setupTest(t, 1)
		user, err := New(store, logger.Nop()).GetUserSafe(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "5.00", user.Balance.StringFixed(2))
	})

	t.Run("corrupted text is reset", func(t *testing.T) {
		store := setupTest(t, 7)
		setRaw(t, store, map[int64]string{7: "abc"})

		_, err := store.GetUser(ctx, 7)
		require.ErrorIs(t, err, errs.ErrCorruptData)

		user, err := New(store, logger.Nop()).GetUserSafe(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
		assert.True(t, user.Balance.IsZero())
		assert.Equal(t, "0.00", *rawOf(t, store, 7))
	})

	t.Run("null is reset", func(t *testing.T) {
		store := setupTest(t, 3)
		require.NoError(t, store.SetRawBalanceNull(3))

		user, err := New(store, logger.Nop()).GetUserSafe(ctx, 3)
		require.NoError(t, err)
		assert.True(t, user.Balance.IsZero())
	})

	t.Run("out of range is reset", func(t *testing.T) {
		store := setupTest(t, 4)
		setRaw(t, store, map[int64]string{4: "123456789.00"})

		user, err := New(store, logger.Nop()).GetUserSafe(ctx, 4)
		require.NoError(t, err)
		assert.True(t, user.Balance.IsZero())
	})

	t.Run("unknown user", func(t *testing.T) {
		store := setupTest(t, 1)
		_, err := New(store, logger.Nop()).GetUserSafe(ctx, 2)
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("repair write fails", func(t *testing.T) {
		store := setupTest(t, 7)
		setRaw(t, store, map[int64]string{7: "abc"})

		_, err := New(failingWriteStore{store}, logger.Nop()).GetUserSafe(ctx, 7)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		assert.NotErrorIs(t, err, errs.ErrCorruptData)
		assert.Equal(t, "abc", *rawOf(t, store, 7))
	})

	t.Run("retry still fails", func(t *testing.T) {
		store := setupTest(t, 7)
		setRaw(t, store, map[int64]string{7: "abc"})

		_, err := New(ignoringWriteStore{store}, logger.Nop()).GetUserSafe(ctx, 7)
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestScanAndRepairAll(t *testing.T) {
	ctx := context.Background()
	store := setupTest(t, 1, 2, 3, 4, 5, 6)
	setRaw(t, store, map[int64]string{
		1: "12345678.90",
		2: "abc",
		3: "99999999.99",
		4: "100000000.00",
		5: "-100000000",
	})
	require.NoError(t, store.SetRawBalanceNull(6))

	r := New(store, logger.Nop())

	corrections, err := r.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, corrections, 4)
	assert.Equal(t, Correction{UserID: 2, Raw: corrections[0].Raw, Reason: ReasonInvalid}, corrections[0])
	assert.Equal(t, "abc", *corrections[0].Raw)
	assert.Equal(t, ReasonOutOfRange, corrections[1].Reason)
	assert.Equal(t, int64(4), corrections[1].UserID)
	assert.Equal(t, ReasonOutOfRange, corrections[2].Reason)
	assert.Equal(t, int64(5), corrections[2].UserID)
	assert.Equal(t, Correction{UserID: 6, Reason: ReasonInvalid}, corrections[3])

	// Scan writes nothing
	assert.Equal(t, "abc", *rawOf(t, store, 2))

	ids, err := r.ScanAndRepairAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 5, 6}, ids)

	assert.Equal(t, "12345678.90", *rawOf(t, store, 1))
	assert.Equal(t, "99999999.99", *rawOf(t, store, 3))
	for _, id := range ids {
		assert.Equal(t, "0.00", *rawOf(t, store, id))
	}

	// idempotent
	ids, err = r.ScanAndRepairAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScanAndRepairAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := setupTest(t, 1, 2)
	setRaw(t, store, map[int64]string{1: "abc", 2: "x"})

	_, err := New(failingWriteStore{store}, logger.Nop()).ScanAndRepairAll(ctx)
	require.Error(t, err)
	assert.Equal(t, "abc", *rawOf(t, store, 1))
	assert.Equal(t, "x", *rawOf(t, store, 2))
}

func TestScanAndRepairAllClean(t *testing.T) {
	ids, err := New(setupTest(t, 1, 2), logger.Nop()).ScanAndRepairAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
