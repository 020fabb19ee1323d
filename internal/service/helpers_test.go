package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
	"github.com/and161185/ifcoins/internal/repository/memory"
)

// retryHard keeps concurrency tests from surfacing conflicts.
var retryHard = repository.RetryPolicy{Attempts: 50, Base: 100 * time.Microsecond}

func seed(t *testing.T, st *memory.Store, fn func(tx repository.Tx)) {
	t.Helper()
	require.NoError(t, st.RunTx(context.Background(), func(_ context.Context, tx repository.Tx) error {
		fn(tx)
		return nil
	}))
}

func student(id, reg, class string, coins int64) model.User {
	return model.User{ID: id, Name: id, Role: model.RoleStudent, Registration: reg, Class: class, Coins: coins}
}

func staff(id string, role model.Role) model.User {
	return model.User{ID: id, Name: id, Role: role}
}

func as(id string) auth.Principal { return auth.Principal{ID: id} }

func user(t *testing.T, st *memory.Store, id string) model.User {
	t.Helper()
	u, err := st.UserByID(context.Background(), id)
	require.NoError(t, err)
	return *u
}

func qty(t *testing.T, st *memory.Store, userID, cardID string) int64 {
	t.Helper()
	var q int64
	require.NoError(t, st.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.Inventory(ctx, userID, cardID)
		q = e.Quantity
		return err
	}))
	return q
}

func own(tx repository.Tx, userID, cardID string, q int64) {
	tx.PutInventory(model.InventoryEntry{UserID: userID, CardID: cardID, Quantity: q})
}

func ptr(v int64) *int64 { return &v }
