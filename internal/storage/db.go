package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DB{db}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationAccounts,
		migrationContracts,
		migrationUsageData,
		migrationIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

const migrationUsageData = `
CREATE TABLE IF NOT EXISTS usage_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_id TEXT NOT NULL,
	date TEXT NOT NULL,
	interval TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT NOT NULL,
	dollar_value REAL,
	offpeak_value REAL,
	offpeak_dollar_value REAL,
	uncharged_value REAL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(contract_id, date, interval)
);
`

const migrationAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL UNIQUE,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`

const migrationContracts = `
CREATE TABLE IF NOT EXISTS contracts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_id TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (account_id) REFERENCES accounts(account_id)
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_usage_lookup ON usage_data(contract_id, date, interval);
CREATE INDEX IF NOT EXISTS idx_contracts_account ON contracts(account_id);
`
