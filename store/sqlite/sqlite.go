/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists clients, debts and payments. The ledger components decide what
  to write; this package only knows how.

KEY TABLES:
  clients:  Identity anchor, unique external_code
  debts:    One row per tab line, amounts + cached status
  payments: Append-only payment log

CASCADES:
  Foreign keys are enforced (_foreign_keys=on):
  - deleting a debt deletes its payments
  - deleting a client deletes its debts (and so their payments)

MONEY:
  Amounts are stored as decimal TEXT ("1000.5") and parsed back with
  shopspring/decimal, never as REAL. Aggregation happens in Go.

TIME:
  Timestamps are stored as fixed-width UTC text (timeLayout) so lexical
  order equals chronological order and range queries can compare strings.

CONNECTION:
  The pool is pinned to one connection. The process owns the file
  exclusively, and WithTx routes every read and write of the scope through
  the same *sql.Tx.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better crash recovery.

USAGE:
  store, err := sqlite.New("./data/tab.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  debts := ledger.NewDebtLedger(store, ledger.SystemClock{})

MIGRATION:
  Schema is created on New(). Versioned migrations are out of scope.

SEE ALSO:
  - ledger/store.go:        Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/tab-ledger/ledger"
)

// timeLayout is RFC3339 with fixed nanoseconds, always written in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.TxStore using SQLite.
type Store struct {
	*rows
	db *sql.DB
}

// rows holds the row operations. Store uses it over *sql.DB, WithTx over
// *sql.Tx.
type rows struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Also keeps a ":memory:" database alive across calls.
	db.SetMaxOpenConns(1)

	store := &Store{rows: &rows{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_code TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		locality TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_external_code
		ON clients(external_code);

	CREATE TABLE IF NOT EXISTS debts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		original_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_payment_at TEXT,
		last_payment_method TEXT
	);

	-- Per-client listing, oldest first (surplus walk order)
	CREATE INDEX IF NOT EXISTS idx_debts_client_created
		ON debts(client_id, created_at, id);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		debt_id INTEGER NOT NULL REFERENCES debts(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_debt
		ON payments(debt_id, paid_at DESC);

	-- Monthly reporting (hot path)
	CREATE INDEX IF NOT EXISTS idx_payments_paid_at
		ON payments(paid_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data. Use only in development and demos.
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// sqlite_sequence restarts the AUTOINCREMENT ids.
	for _, table := range []string{"payments", "debts", "clients", "sqlite_sequence"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&rows{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ ledger.TxStore = (*Store)(nil)

// =============================================================================
// CLIENT STORE
// =============================================================================

func (r *rows) InsertClient(ctx context.Context, c ledger.Client) (ledger.ClientID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO clients (external_code, name, phone, locality, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ExternalCode, c.Name, c.Phone, c.Locality, formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, ledger.ErrDuplicateClient
		}
		return 0, fmt.Errorf("failed to insert client: %w", err)
	}
	id, err := res.LastInsertId()
	return ledger.ClientID(id), err
}

func (r *rows) GetClient(ctx context.Context, id ledger.ClientID) (ledger.Client, error) {
	var (
		c         ledger.Client
		createdAt string
	)
	err := r.q.QueryRowContext(ctx,
		"SELECT id, external_code, name, phone, locality, created_at FROM clients WHERE id = ?",
		id,
	).Scan(&c.ID, &c.ExternalCode, &c.Name, &c.Phone, &c.Locality, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Client{}, ledger.ErrClientNotFound
	}
	if err != nil {
		return ledger.Client{}, fmt.Errorf("failed to get client: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Client{}, fmt.Errorf("client %d created_at: %w", c.ID, err)
	}
	return c, nil
}

func (r *rows) ListClients(ctx context.Context) ([]ledger.Client, error) {
	rs, err := r.q.QueryContext(ctx,
		"SELECT id, external_code, name, phone, locality, created_at FROM clients ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rs.Close()

	var clients []ledger.Client
	for rs.Next() {
		var (
			c         ledger.Client
			createdAt string
		)
		if err := rs.Scan(&c.ID, &c.ExternalCode, &c.Name, &c.Phone, &c.Locality, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("client %d created_at: %w", c.ID, err)
		}
		clients = append(clients, c)
	}
	return clients, rs.Err()
}

func (r *rows) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	return r.deleteByID(ctx, "clients", int64(id), ledger.ErrClientNotFound)
}

// =============================================================================
// DEBT STORE
// =============================================================================

const debtColumns = `id, client_id, original_amount, paid_amount, description, status,
	created_at, last_payment_at, last_payment_method`

func (r *rows) InsertDebt(ctx context.Context, d ledger.Debt) (ledger.DebtID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO debts (client_id, original_amount, paid_amount, description, status,
			created_at, last_payment_at, last_payment_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ClientID,
		d.OriginalAmount.String(),
		d.PaidAmount.String(),
		d.Description,
		d.Status,
		formatTime(d.CreatedAt),
		nullTime(d.LastPaymentAt),
		nullString(d.LastPaymentMethod),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, ledger.ErrClientNotFound
		}
		return 0, fmt.Errorf("failed to insert debt: %w", err)
	}
	id, err := res.LastInsertId()
	return ledger.DebtID(id), err
}

func (r *rows) GetDebt(ctx context.Context, id ledger.DebtID) (ledger.Debt, error) {
	d, err := scanDebt(r.q.QueryRowContext(ctx,
		"SELECT "+debtColumns+" FROM debts WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Debt{}, ledger.ErrDebtNotFound
	}
	if err != nil {
		return ledger.Debt{}, fmt.Errorf("failed to get debt: %w", err)
	}
	return d, nil
}

// UpdateDebt writes the mutable columns. client_id and created_at are never
// rewritten.
func (r *rows) UpdateDebt(ctx context.Context, d ledger.Debt) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE debts SET
			original_amount = ?,
			paid_amount = ?,
			description = ?,
			status = ?,
			last_payment_at = ?,
			last_payment_method = ?
		WHERE id = ?
	`,
		d.OriginalAmount.String(),
		d.PaidAmount.String(),
		d.Description,
		d.Status,
		nullTime(d.LastPaymentAt),
		nullString(d.LastPaymentMethod),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	return expectOne(res, ledger.ErrDebtNotFound)
}

func (r *rows) DeleteDebt(ctx context.Context, id ledger.DebtID) error {
	return r.deleteByID(ctx, "debts", int64(id), ledger.ErrDebtNotFound)
}

func (r *rows) DebtsByClient(ctx context.Context, clientID ledger.ClientID) ([]ledger.Debt, error) {
	return r.queryDebts(ctx,
		"SELECT "+debtColumns+" FROM debts WHERE client_id = ? ORDER BY created_at ASC, id ASC",
		clientID,
	)
}

func (r *rows) ListDebts(ctx context.Context) ([]ledger.Debt, error) {
	return r.queryDebts(ctx,
		"SELECT " + debtColumns + " FROM debts ORDER BY created_at ASC, id ASC",
	)
}

func (r *rows) queryDebts(ctx context.Context, query string, args ...any) ([]ledger.Debt, error) {
	rs, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rs.Close()

	var debts []ledger.Debt
	for rs.Next() {
		d, err := scanDebt(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	return debts, rs.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDebt(row scanner) (ledger.Debt, error) {
	var (
		d             ledger.Debt
		original      string
		paid          string
		createdAt     string
		lastPaymentAt sql.NullString
		lastMethod    sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.ClientID, &original, &paid, &d.Description, &d.Status,
		&createdAt, &lastPaymentAt, &lastMethod,
	)
	if err != nil {
		return d, err
	}

	if d.OriginalAmount, err = decimal.NewFromString(original); err != nil {
		return d, fmt.Errorf("debt %d original_amount: %w", d.ID, err)
	}
	if d.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return d, fmt.Errorf("debt %d paid_amount: %w", d.ID, err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return d, fmt.Errorf("debt %d created_at: %w", d.ID, err)
	}
	if lastPaymentAt.Valid {
		t, err := parseTime(lastPaymentAt.String)
		if err != nil {
			return d, fmt.Errorf("debt %d last_payment_at: %w", d.ID, err)
		}
		d.LastPaymentAt = &t
	}
	d.LastPaymentMethod = lastMethod.String
	return d, nil
}

// =============================================================================
// PAYMENT STORE (append-only)
// =============================================================================

func (r *rows) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO payments (debt_id, amount, paid_at, method) VALUES (?, ?, ?, ?)",
		p.DebtID, p.Amount.String(), formatTime(p.PaidAt), p.Method,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, ledger.ErrDebtNotFound
		}
		return 0, fmt.Errorf("failed to append payment: %w", err)
	}
	id, err := res.LastInsertId()
	return ledger.PaymentID(id), err
}

func (r *rows) PaymentsByDebt(ctx context.Context, debtID ledger.DebtID) ([]ledger.Payment, error) {
	return r.queryPayments(ctx, `
		SELECT id, debt_id, amount, paid_at, method FROM payments
		WHERE debt_id = ?
		ORDER BY paid_at DESC, id DESC
	`, debtID)
}

func (r *rows) PaymentsInRange(ctx context.Context, from, to time.Time) ([]ledger.Payment, error) {
	return r.queryPayments(ctx, `
		SELECT id, debt_id, amount, paid_at, method FROM payments
		WHERE paid_at >= ? AND paid_at < ?
		ORDER BY paid_at ASC, id ASC
	`, formatTime(from), formatTime(to))
}

func (r *rows) ListPayments(ctx context.Context) ([]ledger.Payment, error) {
	return r.queryPayments(ctx, `
		SELECT id, debt_id, amount, paid_at, method FROM payments
		ORDER BY paid_at ASC, id ASC
	`)
}

func (r *rows) queryPayments(ctx context.Context, query string, args ...any) ([]ledger.Payment, error) {
	rs, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rs.Close()

	var payments []ledger.Payment
	for rs.Next() {
		var (
			p      ledger.Payment
			amount string
			paidAt string
		)
		if err := rs.Scan(&p.ID, &p.DebtID, &amount, &paidAt, &p.Method); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %d amount: %w", p.ID, err)
		}
		if p.PaidAt, err = parseTime(paidAt); err != nil {
			return nil, fmt.Errorf("payment %d paid_at: %w", p.ID, err)
		}
		payments = append(payments, p)
	}
	return payments, rs.Err()
}

// Helper functions

func (r *rows) deleteByID(ctx context.Context, table string, id int64, notFound error) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return expectOne(res, notFound)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
