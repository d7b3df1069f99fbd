/*
Package ledger provides the tab (fiado) debt-ledger engine.

PURPOSE:
  This package keeps per-debt balances consistent across partial payments,
  interest surcharges, overpayments and credit reallocation. The screens that
  collect input live elsewhere; everything that decides what a balance IS
  lives here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client:  Identity anchor, owns zero or more debts
  - Debt:    One owed obligation ("a tab line") with original and paid amounts
  - Payment: Immutable ledger entry recorded against a debt
  - Status:  PENDING / PARTIAL / PAID, derived from the two amounts

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, stored exact, rounded to cents
     only when comparing or displaying
  2. Derived state: Status is a pure function of (original, paid) and is
     rewritten in the same transaction as every amount change
  3. Type Safety: Distinct ID types so a DebtID can't be passed as a ClientID
  4. Explicit handles: Every component gets its Store and Clock at construction

USAGE:
  st, _ := sqlite.New("./tab.db")
  debts := ledger.NewDebtLedger(st, ledger.SystemClock{})
  id, err := debts.OpenDebt(ctx, clientID, "Brake pads", ledger.MustParseMoney("1000"), nil)

SEE ALSO:
  - debts.go:     DebtLedger (open, interest, balances)
  - payments.go:  PaymentProcessor (record, history)
  - credit.go:    CreditReallocator (surplus transfer)
  - directory.go: ClientDirectory
  - store.go:     Persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal amounts, rounded to cents at comparison boundaries
// =============================================================================

// CentPlaces is the precision every comparison and display uses.
const CentPlaces = 2

// NewMoney converts a float literal. Prefer MustParseMoney for user input.
func NewMoney(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// MustParseMoney parses a decimal literal and panics on malformed input.
// Meant for constants and tests.
func MustParseMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID int64
type DebtID int64
type PaymentID int64

// =============================================================================
// CLIENT
// =============================================================================

// Client is never mutated by the ledger. Registration and deletion go
// through the Directory.
type Client struct {
	ID           ClientID
	ExternalCode string // user-supplied, unique (national ID, account number)
	Name         string
	Phone        string
	Locality     string // free text, not authoritative
	CreatedAt    time.Time
}

// =============================================================================
// DEBT - one tab line
// =============================================================================

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPartial Status = "PARTIAL"
	StatusPaid    Status = "PAID"
)

// DeriveStatus is the single rule for debt status:
//
//	PENDING  when round(paid) == 0
//	PAID     when round(paid) >= round(original)
//	PARTIAL  otherwise
//
// An overpaid debt is PAID; its surplus is exposed separately as credit.
func DeriveStatus(original, paid decimal.Decimal) Status {
	p := RoundCents(paid)
	switch {
	case p.IsZero():
		return StatusPending
	case p.GreaterThanOrEqual(RoundCents(original)):
		return StatusPaid
	default:
		return StatusPartial
	}
}

type Debt struct {
	ID             DebtID
	ClientID       ClientID
	OriginalAmount decimal.Decimal // grows only through interest
	PaidAmount     decimal.Decimal // shrinks only through credit reallocation
	Description    string
	Status         Status // cached projection of DeriveStatus
	CreatedAt      time.Time

	// Mirrors of the most recent payment.
	LastPaymentAt     *time.Time
	LastPaymentMethod string
}

// Remaining is original - paid. Negative means the debt holds credit.
func (d Debt) Remaining() decimal.Decimal {
	return d.OriginalAmount.Sub(d.PaidAmount)
}

// Surplus is max(0, paid - original).
func (d Debt) Surplus() decimal.Decimal {
	s := d.PaidAmount.Sub(d.OriginalAmount)
	if s.IsPositive() {
		return s
	}
	return decimal.Zero
}

// HasCredit reports a surplus of at least one cent.
func (d Debt) HasCredit() bool {
	return RoundCents(d.Surplus()).IsPositive()
}

// Refresh recomputes the cached status. Call after any amount change and
// before persisting.
func (d *Debt) Refresh() {
	d.Status = DeriveStatus(d.OriginalAmount, d.PaidAmount)
}

// =============================================================================
// PAYMENT - immutable ledger entry
// =============================================================================

const (
	// MethodCash is used when a payment is recorded without a method.
	MethodCash = "Cash"

	// MethodCreditTransfer tags payments created by credit reallocation.
	// Callers cannot record payments with this label directly.
	MethodCreditTransfer = "Credit transfer"
)

type Payment struct {
	ID     PaymentID
	DebtID DebtID
	Amount decimal.Decimal
	PaidAt time.Time
	Method string // free text, may carry an annotation: "Debit (branch X)"
}

// IsCreditTransfer reports whether the payment moved existing credit rather
// than new money.
func (p Payment) IsCreditTransfer() bool {
	return p.Method == MethodCreditTransfer
}

// =============================================================================
// BALANCE VIEWS
// =============================================================================

// ClientBalance is one row of the client list: who owes what.
type ClientBalance struct {
	Client Client
	Owed   decimal.Decimal // sum of remaining, may be negative
	Credit decimal.Decimal // sum of per-debt surpluses
}
