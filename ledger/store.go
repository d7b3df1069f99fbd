/*
store.go - Persistence interface for clients, debts and payments

PURPOSE:
  Defines the interface between the ledger rules and the database. The
  components never hold a global connection; each receives a TxStore when it
  is constructed and opens a transaction scope for every multi-row write.

KEY INTERFACES:
  Store:   Row-level reads and writes on the three relations
  TxStore: Store + WithTx for all-or-nothing scopes

WRITE RULES:
  - Payments are append-only. There is no UpdatePayment.
  - DeleteDebt removes the debt and its payments together.
  - DeleteClient removes the client, its debts and their payments.
  - UpdateDebt persists amounts, cached status and last-payment mirrors.

ERRORS:
  Implementations return ErrClientNotFound / ErrDebtNotFound for missing
  rows and ErrDuplicateClient when the external code is taken. Every other
  error is treated as a storage failure by the components.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - ledger/store/memory.go: In-memory for tests and demos

SEE ALSO:
  - debts.go, payments.go, credit.go: The transactional callers
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

// Store handles row-level persistence.
type Store interface {
	// Clients
	InsertClient(ctx context.Context, c Client) (ClientID, error)
	GetClient(ctx context.Context, id ClientID) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	DeleteClient(ctx context.Context, id ClientID) error

	// Debts
	InsertDebt(ctx context.Context, d Debt) (DebtID, error)
	GetDebt(ctx context.Context, id DebtID) (Debt, error)
	UpdateDebt(ctx context.Context, d Debt) error
	DeleteDebt(ctx context.Context, id DebtID) error

	// DebtsByClient returns the client's debts oldest first
	// (created_at, then ID).
	DebtsByClient(ctx context.Context, clientID ClientID) ([]Debt, error)

	// ListDebts returns every debt, oldest first.
	ListDebts(ctx context.Context) ([]Debt, error)

	// Payments
	InsertPayment(ctx context.Context, p Payment) (PaymentID, error)

	// PaymentsByDebt returns the debt's payments most recent first.
	PaymentsByDebt(ctx context.Context, debtID DebtID) ([]Payment, error)

	// PaymentsInRange returns payments with from <= PaidAt < to, oldest first.
	PaymentsInRange(ctx context.Context, from, to time.Time) ([]Payment, error)

	// ListPayments returns every payment, oldest first.
	ListPayments(ctx context.Context) ([]Payment, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the scoped Store is
	// rolled back and the error is returned unchanged.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
