// Package store persists the ledger, user rules, learned corrections, and
// the sync checkpoint in a single SQLite database file.
//
// Amounts are stored as decimal strings so no precision is lost crossing
// the database boundary. All operations take a context and are safe for
// concurrent use; SQLite serializes writers internally.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"sms-ledger-service/internal/models"
	"sms-ledger-service/pkg/errors"
	"sms-ledger-service/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	counterparty    TEXT    NOT NULL,
	category        TEXT    NOT NULL,
	amount          TEXT    NOT NULL,
	timestamp_ms    INTEGER NOT NULL,
	method          TEXT    NOT NULL,
	type            TEXT    NOT NULL,
	account_source  TEXT    NOT NULL,
	remark          TEXT    NOT NULL DEFAULT '',
	enriched_source TEXT    NOT NULL,
	balance_after   TEXT,
	is_recurring    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp_ms);

CREATE TABLE IF NOT EXISTS rules (
	merchant_pattern TEXT PRIMARY KEY,
	category         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	amount_rounded INTEGER NOT NULL,
	time_bucket    INTEGER NOT NULL,
	account_source TEXT    NOT NULL,
	counterparty   TEXT    NOT NULL,
	category       TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (amount_rounded, time_bucket, account_source)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name          TEXT PRIMARY KEY,
	timestamp_ms  INTEGER NOT NULL
);
`

const checkpointLastSync = "last_sync"

// Store wraps the SQLite database holding all durable state.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "open", err).
			WithContext("path", path)
	}

	// A single connection avoids SQLITE_BUSY on concurrent writes from
	// the same process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StoreError(errors.CodeSchemaError, "migrate", err).
			WithContext("path", path)
	}

	return &Store{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("store"),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAllTransactions returns the full ledger ordered by timestamp descending.
func (s *Store) GetAllTransactions(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, counterparty, category, amount, timestamp_ms, method, type,
		       account_source, remark, enriched_source, balance_after, is_recurring
		FROM transactions
		ORDER BY timestamp_ms DESC, id DESC`)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "get_all_transactions", err)
	}
	defer rows.Close()

	var ledger []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		ledger = append(ledger, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "get_all_transactions", err)
	}
	return ledger, nil
}

// ReplaceTransactions atomically replaces the ledger with the given set.
// New transactions (ID == 0) get fresh IDs; existing ones keep theirs.
func (s *Store) ReplaceTransactions(ctx context.Context, ledger []*models.Transaction) error {
	for _, tx := range ledger {
		if err := tx.Validate(); err != nil {
			return errors.StoreError(errors.CodeWriteRejected, "replace_transactions", err).
				WithContext("counterparty", tx.Counterparty)
		}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "replace_transactions", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "replace_transactions", err)
	}

	insertNew, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions
			(counterparty, category, amount, timestamp_ms, method, type,
			 account_source, remark, enriched_source, balance_after, is_recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "replace_transactions", err)
	}
	defer insertNew.Close()

	insertExisting, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions
			(id, counterparty, category, amount, timestamp_ms, method, type,
			 account_source, remark, enriched_source, balance_after, is_recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "replace_transactions", err)
	}
	defer insertExisting.Close()

	for _, tx := range ledger {
		balance := balanceToNull(tx.BalanceAfter)
		if tx.IsNew() {
			result, err := insertNew.ExecContext(ctx,
				tx.Counterparty, tx.Category, tx.Amount.String(), tx.Timestamp,
				string(tx.Method), string(tx.Type), tx.AccountSource, tx.Remark,
				string(tx.EnrichedSource), balance, boolToInt(tx.IsRecurring))
			if err != nil {
				return errors.StoreError(errors.CodeWriteRejected, "replace_transactions", err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return errors.StoreError(errors.CodeStoreUnavailable, "replace_transactions", err)
			}
			tx.ID = id
		} else {
			if _, err := insertExisting.ExecContext(ctx,
				tx.ID, tx.Counterparty, tx.Category, tx.Amount.String(), tx.Timestamp,
				string(tx.Method), string(tx.Type), tx.AccountSource, tx.Remark,
				string(tx.EnrichedSource), balance, boolToInt(tx.IsRecurring)); err != nil {
				return errors.StoreError(errors.CodeWriteRejected, "replace_transactions", err)
			}
		}
	}

	if err := dbTx.Commit(); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "replace_transactions", err)
	}

	s.logger.WithField("count", len(ledger)).Debug("Replaced ledger")
	return nil
}

// DeleteAllTransactions empties the ledger.
func (s *Store) DeleteAllTransactions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "delete_all_transactions", err)
	}
	return nil
}

// GetAllRules returns every categorization rule, ordered by pattern.
func (s *Store) GetAllRules(ctx context.Context) ([]models.CategorizationRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT merchant_pattern, category FROM rules ORDER BY merchant_pattern`)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "get_all_rules", err)
	}
	defer rows.Close()

	var rules []models.CategorizationRule
	for rows.Next() {
		var rule models.CategorizationRule
		if err := rows.Scan(&rule.MerchantPattern, &rule.Category); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "get_all_rules", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpsertRule inserts or replaces a rule keyed on its merchant pattern.
func (s *Store) UpsertRule(ctx context.Context, rule models.CategorizationRule) error {
	if err := rule.Validate(); err != nil {
		return errors.StoreError(errors.CodeWriteRejected, "upsert_rule", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rules (merchant_pattern, category) VALUES (?, ?)`,
		rule.MerchantPattern, rule.Category); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "upsert_rule", err)
	}
	return nil
}

// DeleteRule removes the rule with the given merchant pattern. Returns
// whether a rule was actually deleted.
func (s *Store) DeleteRule(ctx context.Context, merchantPattern string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM rules WHERE merchant_pattern = ?`, merchantPattern)
	if err != nil {
		return false, errors.StoreError(errors.CodeStoreUnavailable, "delete_rule", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.StoreError(errors.CodeStoreUnavailable, "delete_rule", err)
	}
	return affected > 0, nil
}

// FindMatching looks up a correction pattern by its composite key. Returns
// nil without error when no pattern matches.
func (s *Store) FindMatching(ctx context.Context, amountRounded, timeBucket int64, source string) (*models.CorrectionPattern, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT amount_rounded, time_bucket, account_source, counterparty, category
		FROM corrections
		WHERE amount_rounded = ? AND time_bucket = ? AND account_source = ?`,
		amountRounded, timeBucket, source)

	var pattern models.CorrectionPattern
	err := row.Scan(&pattern.AmountRounded, &pattern.TimeBucket,
		&pattern.AccountSource, &pattern.Counterparty, &pattern.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "find_matching_correction", err)
	}
	return &pattern, nil
}

// Upsert inserts or replaces a correction pattern keyed on its composite key.
func (s *Store) Upsert(ctx context.Context, pattern models.CorrectionPattern) error {
	if err := pattern.Validate(); err != nil {
		return errors.StoreError(errors.CodeWriteRejected, "upsert_correction", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO corrections
			(amount_rounded, time_bucket, account_source, counterparty, category)
		VALUES (?, ?, ?, ?, ?)`,
		pattern.AmountRounded, pattern.TimeBucket, pattern.AccountSource,
		pattern.Counterparty, pattern.Category); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "upsert_correction", err)
	}
	return nil
}

// GetLastSyncTime returns the checkpoint of the last successful sync, or 0
// when no sync has completed yet.
func (s *Store) GetLastSyncTime(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT timestamp_ms FROM checkpoints WHERE name = ?`, checkpointLastSync)

	var ts int64
	err := row.Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.StoreError(errors.CodeStoreUnavailable, "get_last_sync_time", err)
	}
	return ts, nil
}

// SetLastSyncTime advances the sync checkpoint.
func (s *Store) SetLastSyncTime(ctx context.Context, timestampMs int64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (name, timestamp_ms) VALUES (?, ?)`,
		checkpointLastSync, timestampMs); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "set_last_sync_time", err)
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	var (
		tx          models.Transaction
		amount      string
		method      string
		txType      string
		source      string
		balance     sql.NullString
		isRecurring int
	)

	if err := rows.Scan(&tx.ID, &tx.Counterparty, &tx.Category, &amount,
		&tx.Timestamp, &method, &txType, &tx.AccountSource, &tx.Remark,
		&source, &balance, &isRecurring); err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "scan_transaction", err)
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, errors.StoreError(errors.CodeSchemaError, "scan_transaction",
			fmt.Errorf("stored amount %q is not a decimal: %w", amount, err))
	}
	tx.Amount = dec
	tx.Method = models.PaymentMethod(method)
	tx.Type = models.TransactionType(txType)
	tx.EnrichedSource = models.EnrichmentSource(source)
	tx.IsRecurring = isRecurring != 0

	if balance.Valid && balance.String != "" {
		bal, err := decimal.NewFromString(balance.String)
		if err != nil {
			return nil, errors.StoreError(errors.CodeSchemaError, "scan_transaction",
				fmt.Errorf("stored balance %q is not a decimal: %w", balance.String, err))
		}
		tx.BalanceAfter = &bal
	}

	return &tx, nil
}

func balanceToNull(balance *decimal.Decimal) interface{} {
	if balance == nil {
		return nil
	}
	return balance.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
