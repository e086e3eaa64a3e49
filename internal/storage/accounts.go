package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wattsync/wattsync/pkg/models"
)

// AccountStore handles account and contract identity persistence
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new account store
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// UpsertAccount records an account ID, ignoring duplicates
func (s *AccountStore) UpsertAccount(ctx context.Context, accountID string) error {
	query := `
		INSERT INTO accounts (account_id)
		VALUES (?)
		ON CONFLICT(account_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// UpsertContract records a contract under an account. Re-upserting with a
// different account reassigns the contract (last write wins).
func (s *AccountStore) UpsertContract(ctx context.Context, contractID, accountID string) error {
	// Ensure the account row exists first
	if err := s.UpsertAccount(ctx, accountID); err != nil {
		return err
	}

	query := `
		INSERT INTO contracts (contract_id, account_id)
		VALUES (?, ?)
		ON CONFLICT(contract_id) DO UPDATE SET
			account_id = excluded.account_id
	`

	if _, err := s.db.ExecContext(ctx, query, contractID, accountID); err != nil {
		return fmt.Errorf("failed to upsert contract: %w", err)
	}
	return nil
}

// GetAllContracts returns every stored contract, ordered by account then contract
func (s *AccountStore) GetAllContracts(ctx context.Context) ([]models.Contract, error) {
	query := `
		SELECT contract_id, account_id
		FROM contracts
		ORDER BY account_id, contract_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		var c models.Contract
		if err := rows.Scan(&c.ContractID, &c.AccountID); err != nil {
			return nil, fmt.Errorf("failed to scan contract row: %w", err)
		}
		contracts = append(contracts, c)
	}

	return contracts, rows.Err()
}

// GetContractAccount returns the account a contract belongs to, or ErrNotFound
func (s *AccountStore) GetContractAccount(ctx context.Context, contractID string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx,
		"SELECT account_id FROM contracts WHERE contract_id = ?",
		contractID,
	).Scan(&accountID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up contract account: %w", err)
	}
	return accountID, nil
}

// ContractExists reports whether a contract is already stored
func (s *AccountStore) ContractExists(ctx context.Context, contractID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM contracts WHERE contract_id = ?)",
		contractID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check contract: %w", err)
	}
	return exists, nil
}
