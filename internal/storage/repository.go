package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"smsledger/internal/core"

	_ "modernc.org/sqlite"
)

// MaxSyncAttempts bounds how often a failed spreadsheet sync is retried.
const MaxSyncAttempts = 5

// IngestResult reports the outcome of one Ingest call.
type IngestResult struct {
	Inserted int
	Skipped  int
	Failed   int
	IDs      []int64
	Errors   []error
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	Category  string
	MinAmount *int64
	MaxAmount *int64
	Date      string // YYYY-MM-DD, compared against date(datetime)
	Limit     int
	Offset    int
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	path    string
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// brings its schema up to date.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		path:    dbPath,
	}

	if err := repo.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// EnsureSchema creates the tables and indexes if they are missing.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := RunMigrations(r.path); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for tests.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Ingest stores records in a single database transaction. Records whose
// (datetime, raw_text) already exist are skipped. A record that fails for
// any other reason is counted in Failed and the batch continues; only
// failing to begin or commit the transaction aborts the whole batch.
func (r *SQLiteRepository) Ingest(ctx context.Context, records []core.TransactionRecord) (IngestResult, error) {
	var res IngestResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)

	for _, rec := range records {
		id, inserted, err := r.insertOne(ctx, tx, q, rec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return IngestResult{}, fmt.Errorf("ingest cancelled: %w", ctxErr)
			}
			werr := &core.StoreWriteError{RawText: rec.RawText, Err: err}
			slog.ErrorContext(ctx, "Error inserting transaction",
				"raw_text", core.Truncate(rec.RawText, 30),
				"error", err)
			res.Failed++
			res.Errors = append(res.Errors, werr)
			continue
		}
		if !inserted {
			res.Skipped++
			continue
		}
		res.Inserted++
		res.IDs = append(res.IDs, id)
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("commit ingest transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transactions ingested",
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"failed", res.Failed)

	return res, nil
}

// insertOne runs a single insert inside a savepoint so a failed statement
// leaves the surrounding transaction usable.
func (r *SQLiteRepository) insertOne(ctx context.Context, tx *sql.Tx, q *Queries, rec core.TransactionRecord) (int64, bool, error) {
	if err := rec.Validate(); err != nil {
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT ingest_record"); err != nil {
		return 0, false, fmt.Errorf("savepoint: %w", err)
	}

	result, err := q.InsertTransaction(ctx, insertParams(rec))
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO ingest_record"); rbErr != nil {
			return 0, false, errors.Join(err, rbErr)
		}
		if _, relErr := tx.ExecContext(ctx, "RELEASE ingest_record"); relErr != nil {
			return 0, false, errors.Join(err, relErr)
		}
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE ingest_record"); err != nil {
		return 0, false, fmt.Errorf("release savepoint: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

func insertParams(rec core.TransactionRecord) InsertTransactionParams {
	return InsertTransactionParams{
		Category:       rec.Category.String(),
		Datetime:       rec.Datetime,
		Amount:         rec.Amount,
		Fee:            rec.Fee,
		Recipient:      nullString(rec.Recipient),
		Code:           nullString(rec.Code),
		AccountOrPhone: nullString(rec.AccountOrPhone),
		Sender:         nullString(rec.Sender),
		RawText:        rec.RawText,
	}
}

// GetTransaction returns core.ErrNotFound when id does not exist.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.TransactionRecord, error) {
	t, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionRecord{}, core.ErrNotFound
	}
	if err != nil {
		return core.TransactionRecord{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return toRecord(t), nil
}

// ListTransactions returns stored transactions in insertion order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.TransactionRecord, error) {
	var where []string
	var args []any

	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.MinAmount != nil {
		where = append(where, "amount >= ?")
		args = append(args, *f.MinAmount)
	}
	if f.MaxAmount != nil {
		where = append(where, "amount <= ?")
		args = append(args, *f.MaxAmount)
	}
	if f.Date != "" {
		where = append(where, "date(datetime) = ?")
		args = append(args, f.Date)
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.TransactionRecord{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, toRecord(t))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Count returns the number of stored transactions.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.queries.CountTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// LatestID returns the highest transaction id, or 0 for an empty store.
// Ids are never reused, so it changes whenever a transaction is inserted.
func (r *SQLiteRepository) LatestID(ctx context.Context) (int64, error) {
	id, err := r.queries.LatestTransactionID(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest transaction id: %w", err)
	}
	return id, nil
}

// CountByCategory returns per-category counts and amount totals.
func (r *SQLiteRepository) CountByCategory(ctx context.Context) ([]core.CategoryCount, error) {
	rows, err := r.queries.CountByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}

	out := make([]core.CategoryCount, len(rows))
	for i, row := range rows {
		out[i] = core.CategoryCount{
			Category: core.Category(row.Category),
			Count:    row.Count,
			Total:    row.Total,
		}
	}
	return out, nil
}

// GetPendingSync returns ids of transactions not yet mirrored to the
// spreadsheet, including failed ones still under MaxSyncAttempts.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]int64, error) {
	ids, err := r.queries.GetPendingSync(ctx, MaxSyncAttempts, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	return ids, nil
}

// MarkSynced records a successful spreadsheet append.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64, ref string) error {
	if err := r.queries.MarkSynced(ctx, id, ref); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.DebugContext(ctx, "Transaction marked as synced", "id", id, "sheets_ref", ref)
	return nil
}

// MarkSyncError records a failed spreadsheet append.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.queries.MarkSyncError(ctx, id, msg); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id, "error", msg)
	return nil
}

// SyncStatus returns the spreadsheet sync state of id, or core.ErrNotFound
// when it has never been attempted.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id int64) (SyncStatus, error) {
	s, err := r.queries.GetSyncStatus(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncStatus{}, core.ErrNotFound
	}
	if err != nil {
		return SyncStatus{}, fmt.Errorf("get sync status: %w", err)
	}
	return s, nil
}

func toRecord(t Transaction) core.TransactionRecord {
	return core.TransactionRecord{
		ID:             t.ID,
		Category:       core.Category(t.Category),
		Datetime:       t.Datetime,
		Amount:         t.Amount,
		Fee:            t.Fee,
		Recipient:      fromNullString(t.Recipient),
		Code:           fromNullString(t.Code),
		AccountOrPhone: fromNullString(t.AccountOrPhone),
		Sender:         fromNullString(t.Sender),
		RawText:        t.RawText,
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
