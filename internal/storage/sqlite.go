// Package storage persists transactions in SQLite and implements the
// read-only transaction source and transactional bulk-delete collaborators
// used by duplicate scans.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"golang-dedup-service/internal/models"
	dedupErrors "golang-dedup-service/pkg/errors"
	"golang-dedup-service/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	date             TEXT NOT NULL,
	amount           TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	vendor           TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	subcategory      TEXT NOT NULL DEFAULT '',
	auto_categorized INTEGER NOT NULL DEFAULT 0,
	reviewed         INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date);

CREATE TABLE IF NOT EXISTS deleted_transactions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	date             TEXT NOT NULL,
	amount           TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	vendor           TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	subcategory      TEXT NOT NULL DEFAULT '',
	auto_categorized INTEGER NOT NULL DEFAULT 0,
	reviewed         INTEGER NOT NULL DEFAULT 0,
	deleted_at       TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Store wraps a SQLite database holding the transaction history.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// bootstraps the schema. WAL mode with a busy timeout keeps concurrent
// readers from tripping over the single writer.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, dedupErrors.StorageError(dedupErrors.CodeStorageUnavailable, "open database", err)
	}

	// SQLite allows one writer; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dedupErrors.StorageError(dedupErrors.CodeStorageUnavailable, "ping database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "create schema", err)
	}

	return &Store{
		db:     db,
		logger: log.WithComponent("storage"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTransactions inserts or replaces the given transactions in one
// database transaction.
func (s *Store) SaveTransactions(ctx context.Context, transactions []*models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dedupErrors.StorageError(dedupErrors.CodeTransactionFailed, "begin save", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(id, user_id, date, amount, description, vendor, category, subcategory, auto_categorized, reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "prepare insert", err)
	}
	defer stmt.Close()

	for _, t := range transactions {
		if err := t.Validate(); err != nil {
			return dedupErrors.Wrap(err, dedupErrors.CategoryValidation, dedupErrors.CodeInvalidData,
				fmt.Sprintf("invalid transaction %s", t.ID))
		}

		_, err = stmt.ExecContext(ctx,
			t.ID, t.UserID, t.Date.Format("2006-01-02"), t.Amount.String(),
			t.Description, t.Vendor, t.Category, t.Subcategory, t.AutoCategorized, t.Reviewed)
		if err != nil {
			return dedupErrors.StorageError(dedupErrors.CodeQueryFailed,
				fmt.Sprintf("insert transaction %s", t.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dedupErrors.StorageError(dedupErrors.CodeTransactionFailed, "commit save", err)
	}

	s.logger.WithField("count", len(transactions)).Debug("Saved transactions")
	return nil
}

// GetTransactions returns a user's transactions within [start, end] whose
// absolute amount is at least minAmount, ordered ascending by date.
func (s *Store) GetTransactions(ctx context.Context, userID string, start, end time.Time, minAmount decimal.Decimal) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, amount, description, vendor, category, subcategory, auto_categorized, reviewed
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, id ASC`,
		userID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "fetch transactions", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		// Amounts are stored as decimal strings, so the threshold filter
		// happens here rather than in SQL.
		if t.AbsAmount().LessThan(minAmount) {
			continue
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "iterate transactions", err)
	}

	return transactions, nil
}

// GetTransactionByID fetches a single transaction.
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, date, amount, description, vendor, category, subcategory, auto_categorized, reviewed
		FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, dedupErrors.New(dedupErrors.CategoryStorage, dedupErrors.CodeQueryFailed,
			fmt.Sprintf("transaction not found: %s", id))
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CountTransactions returns the number of stored transactions for a user.
func (s *Store) CountTransactions(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "count transactions", err)
	}
	return count, nil
}

// MarkReviewed flags the given transactions as reviewed. Reviewed
// transactions are excluded from later scans unless the scan explicitly
// includes them.
func (s *Store) MarkReviewed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dedupErrors.StorageError(dedupErrors.CodeTransactionFailed, "begin mark reviewed", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE transactions SET reviewed = 1 WHERE id = ?`)
	if err != nil {
		return dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "prepare mark reviewed", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return dedupErrors.StorageError(dedupErrors.CodeQueryFailed,
				fmt.Sprintf("mark transaction %s reviewed", id), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dedupErrors.StorageError(dedupErrors.CodeTransactionFailed, "commit mark reviewed", err)
	}

	s.logger.WithField("count", len(ids)).Debug("Marked transactions reviewed")
	return nil
}

// BulkDelete removes the given transactions inside one database transaction.
// When backup is true each row is copied into deleted_transactions before
// removal. Ids that do not exist are reported in the result's Failed map
// without aborting the rest; a database error rolls everything back.
func (s *Store) BulkDelete(ctx context.Context, ids []string, backup bool) (*models.BulkDeleteResult, error) {
	result := &models.BulkDeleteResult{
		Failed: make(map[string]string),
	}
	if len(ids) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dedupErrors.StorageError(dedupErrors.CodeTransactionFailed, "begin delete", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if backup {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO deleted_transactions
					(id, user_id, date, amount, description, vendor, category, subcategory, auto_categorized, reviewed)
				SELECT id, user_id, date, amount, description, vendor, category, subcategory, auto_categorized, reviewed
				FROM transactions WHERE id = ?`, id)
			if err != nil {
				return nil, dedupErrors.StorageError(dedupErrors.CodeTransactionFailed,
					fmt.Sprintf("backup transaction %s", id), err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return nil, dedupErrors.StorageError(dedupErrors.CodeTransactionFailed,
				fmt.Sprintf("delete transaction %s", id), err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, dedupErrors.StorageError(dedupErrors.CodeTransactionFailed,
				fmt.Sprintf("delete transaction %s", id), err)
		}

		if affected == 0 {
			result.Failed[id] = "transaction not found"
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, dedupErrors.StorageError(dedupErrors.CodeTransactionFailed, "commit delete", err)
	}

	s.logger.WithFields(logger.Fields{
		"deleted": len(result.Deleted),
		"failed":  len(result.Failed),
		"backup":  backup,
	}).Info("Bulk delete completed")

	return result, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTransaction.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var dateStr, amountStr string

	err := row.Scan(&t.ID, &t.UserID, &dateStr, &amountStr,
		&t.Description, &t.Vendor, &t.Category, &t.Subcategory, &t.AutoCategorized, &t.Reviewed)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, dedupErrors.StorageError(dedupErrors.CodeQueryFailed, "scan row", err)
	}

	t.Date, err = models.ParseDateWithFormats(dateStr)
	if err != nil {
		return nil, dedupErrors.Wrap(err, dedupErrors.CategoryStorage, dedupErrors.CodeInvalidData,
			fmt.Sprintf("stored date for %s is invalid", t.ID))
	}

	t.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, dedupErrors.Wrap(err, dedupErrors.CategoryStorage, dedupErrors.CodeInvalidData,
			fmt.Sprintf("stored amount for %s is invalid", t.ID))
	}

	return &t, nil
}
