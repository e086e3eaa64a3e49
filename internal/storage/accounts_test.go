package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStore_UpsertContract(t *testing.T) {
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	err := store.UpsertContract(ctx, "c-100", "acct-1")
	require.NoError(t, err)

	accountID, err := store.GetContractAccount(ctx, "c-100")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	// Re-upserting is a no-op
	err = store.UpsertContract(ctx, "c-100", "acct-1")
	require.NoError(t, err)

	contracts, err := store.GetAllContracts(ctx)
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
}

func TestAccountStore_UpsertContract_Reassigns(t *testing.T) {
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertContract(ctx, "c-100", "acct-1"))
	require.NoError(t, store.UpsertContract(ctx, "c-100", "acct-2"))

	accountID, err := store.GetContractAccount(ctx, "c-100")
	require.NoError(t, err)
	assert.Equal(t, "acct-2", accountID)
}

func TestAccountStore_GetContractAccount_NotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewAccountStore(db)

	_, err := store.GetContractAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountStore_GetAllContracts_Ordering(t *testing.T) {
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertContract(ctx, "c-300", "acct-2"))
	require.NoError(t, store.UpsertContract(ctx, "c-200", "acct-1"))
	require.NoError(t, store.UpsertContract(ctx, "c-100", "acct-1"))

	contracts, err := store.GetAllContracts(ctx)
	require.NoError(t, err)
	require.Len(t, contracts, 3)
	assert.Equal(t, "c-100", contracts[0].ContractID)
	assert.Equal(t, "c-200", contracts[1].ContractID)
	assert.Equal(t, "c-300", contracts[2].ContractID)
}

func TestAccountStore_ContractExists(t *testing.T) {
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertContract(ctx, "c-100", "acct-1"))

	exists, err := store.ContractExists(ctx, "c-100")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ContractExists(ctx, "c-999")
	require.NoError(t, err)
	assert.False(t, exists)
}
