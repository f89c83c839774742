package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the static statements used by the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Transaction is a row of the transactions table.
type Transaction struct {
	ID             int64
	Category       string
	Datetime       string
	Amount         int64
	Fee            int64
	Recipient      sql.NullString
	Code           sql.NullString
	AccountOrPhone sql.NullString
	Sender         sql.NullString
	RawText        string
}

const transactionColumns = `id, category, datetime, amount, fee, recipient, code, account_or_phone, sender, raw_text`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (Transaction, error) {
	var t Transaction
	err := s.Scan(
		&t.ID,
		&t.Category,
		&t.Datetime,
		&t.Amount,
		&t.Fee,
		&t.Recipient,
		&t.Code,
		&t.AccountOrPhone,
		&t.Sender,
		&t.RawText,
	)
	return t, err
}

const insertTransaction = `
INSERT INTO transactions (category, datetime, amount, fee, recipient, code, account_or_phone, sender, raw_text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (datetime, raw_text) DO NOTHING
`

type InsertTransactionParams struct {
	Category       string
	Datetime       string
	Amount         int64
	Fee            int64
	Recipient      sql.NullString
	Code           sql.NullString
	AccountOrPhone sql.NullString
	Sender         sql.NullString
	RawText        string
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertTransaction,
		arg.Category,
		arg.Datetime,
		arg.Amount,
		arg.Fee,
		arg.Recipient,
		arg.Code,
		arg.AccountOrPhone,
		arg.Sender,
		arg.RawText,
	)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const countTransactions = `SELECT COUNT(*) FROM transactions`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactions).Scan(&n)
	return n, err
}

const latestTransactionID = `SELECT COALESCE(MAX(id), 0) FROM transactions`

func (q *Queries) LatestTransactionID(ctx context.Context) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, latestTransactionID).Scan(&id)
	return id, err
}

const countByCategory = `
SELECT category, COUNT(*), COALESCE(SUM(amount), 0)
FROM transactions
GROUP BY category
ORDER BY category
`

type CountByCategoryRow struct {
	Category string
	Count    int64
	Total    int64
}

func (q *Queries) CountByCategory(ctx context.Context) ([]CountByCategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, countByCategory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CountByCategoryRow
	for rows.Next() {
		var i CountByCategoryRow
		if err := rows.Scan(&i.Category, &i.Count, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getPendingSync = `
SELECT t.id
FROM transactions t
LEFT JOIN sheet_sync s ON s.transaction_id = t.id
WHERE s.transaction_id IS NULL OR (s.status = 'error' AND s.attempts < ?)
ORDER BY t.id
LIMIT ?
`

func (q *Queries) GetPendingSync(ctx context.Context, maxAttempts, limit int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSync, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const markSynced = `
INSERT INTO sheet_sync (transaction_id, status, sheets_ref, attempts, last_error, updated_at)
VALUES (?, 'synced', ?, 1, NULL, datetime('now'))
ON CONFLICT (transaction_id) DO UPDATE SET
    status = 'synced',
    sheets_ref = excluded.sheets_ref,
    attempts = sheet_sync.attempts + 1,
    last_error = NULL,
    updated_at = excluded.updated_at
`

func (q *Queries) MarkSynced(ctx context.Context, id int64, ref string) error {
	_, err := q.db.ExecContext(ctx, markSynced, id, ref)
	return err
}

const markSyncError = `
INSERT INTO sheet_sync (transaction_id, status, attempts, last_error, updated_at)
VALUES (?, 'error', 1, ?, datetime('now'))
ON CONFLICT (transaction_id) DO UPDATE SET
    status = 'error',
    attempts = sheet_sync.attempts + 1,
    last_error = excluded.last_error,
    updated_at = excluded.updated_at
`

func (q *Queries) MarkSyncError(ctx context.Context, id int64, msg string) error {
	_, err := q.db.ExecContext(ctx, markSyncError, id, msg)
	return err
}

const getSyncStatus = `SELECT status, COALESCE(sheets_ref, ''), attempts FROM sheet_sync WHERE transaction_id = ?`

type SyncStatus struct {
	Status    string
	SheetsRef string
	Attempts  int64
}

func (q *Queries) GetSyncStatus(ctx context.Context, id int64) (SyncStatus, error) {
	var s SyncStatus
	err := q.db.QueryRowContext(ctx, getSyncStatus, id).Scan(&s.Status, &s.SheetsRef, &s.Attempts)
	return s, err
}
