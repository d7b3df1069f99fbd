/*
credit.go - Moving stranded credit onto an open debt

PURPOSE:
  A client can overpay one debt while still owing on another. Reallocation
  applies the surplus to the open debt without any cash changing hands.

ALGORITHM (one transaction):
  1. credit = sum of surpluses over the client's debts; none -> ErrNoCreditAvailable
  2. target must exist, belong to the client and still owe something
  3. applied = min(credit, remaining(target))
  4. record a MethodCreditTransfer payment of applied on the target
  5. walk surplus debts OLDEST FIRST (created_at, then ID) and lower each
     PaidAmount by up to its own surplus until applied is covered

CONSERVATION:
  credit_before == applied + credit_after
  remaining(target) drops by exactly applied

  If the walk can't cover applied the whole transaction is rolled back with
  ErrInvalidReallocation. No partial move is ever visible.

EXAMPLE:
  Debt A: original 300, paid 500  -> surplus 200
  Debt B: original 500, paid 0    -> remaining 500

  Reallocate(client, B):
    applied = 200
    B: paid 200 (credit transfer), remaining 300, PARTIAL
    A: paid 300, surplus 0, still PAID

SEE ALSO:
  - payments.go: recordPayment
  - debts.go:    Surplus / remaining definitions
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CREDIT REALLOCATOR
// =============================================================================

// CreditSource is the amount taken from one surplus debt.
type CreditSource struct {
	DebtID DebtID
	Amount decimal.Decimal
}

// Reallocation is the outcome of a successful transfer.
type Reallocation struct {
	PaymentID       PaymentID
	Applied         decimal.Decimal
	RemainingCredit decimal.Decimal
	Sources         []CreditSource
}

type CreditReallocator struct {
	store TxStore
	clock Clock
}

func NewCreditReallocator(store TxStore, clock Clock) *CreditReallocator {
	return &CreditReallocator{store: store, clock: clock}
}

// AvailableCredit sums the per-debt surpluses of the client.
func (r *CreditReallocator) AvailableCredit(ctx context.Context, clientID ClientID) (decimal.Decimal, error) {
	if _, err := r.store.GetClient(ctx, clientID); err != nil {
		return decimal.Zero, storageErr("available credit", err)
	}
	debts, err := r.store.DebtsByClient(ctx, clientID)
	if err != nil {
		return decimal.Zero, storageErr("available credit", err)
	}
	_, credit := totals(debts)
	return credit, nil
}

// Reallocate applies the client's surplus credit to targetID.
func (r *CreditReallocator) Reallocate(ctx context.Context, clientID ClientID, targetID DebtID) (Reallocation, error) {
	var result Reallocation
	err := r.store.WithTx(ctx, func(s Store) error {
		var err error
		result, err = r.reallocate(ctx, s, clientID, targetID)
		return err
	})
	if err != nil {
		return Reallocation{}, storageErr("reallocate credit", err)
	}
	return result, nil
}

func (r *CreditReallocator) reallocate(ctx context.Context, s Store, clientID ClientID, targetID DebtID) (Reallocation, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return Reallocation{}, err
	}
	debts, err := s.DebtsByClient(ctx, clientID)
	if err != nil {
		return Reallocation{}, err
	}

	_, credit := totals(debts)
	if !RoundCents(credit).IsPositive() {
		return Reallocation{}, ErrNoCreditAvailable
	}

	target, err := s.GetDebt(ctx, targetID)
	if err != nil {
		return Reallocation{}, err
	}
	if target.ClientID != clientID {
		return Reallocation{}, ErrInvalidReallocation
	}
	remaining := target.Remaining()
	if !RoundCents(remaining).IsPositive() {
		return Reallocation{}, ErrAlreadyPaid
	}

	applied := decimal.Min(credit, remaining)

	paymentID, err := recordPayment(ctx, s, targetID, applied, MethodCreditTransfer, r.clock.Now())
	if err != nil {
		return Reallocation{}, err
	}

	// debts is already oldest first.
	var sources []CreditSource
	left := applied
	for _, d := range debts {
		if !left.IsPositive() {
			break
		}
		surplus := d.Surplus()
		if !surplus.IsPositive() {
			continue
		}
		take := decimal.Min(surplus, left)
		d.PaidAmount = d.PaidAmount.Sub(take)
		d.Refresh()
		if err := s.UpdateDebt(ctx, d); err != nil {
			return Reallocation{}, err
		}
		sources = append(sources, CreditSource{DebtID: d.ID, Amount: take})
		left = left.Sub(take)
	}
	if !left.IsZero() {
		return Reallocation{}, ErrInvalidReallocation
	}

	return Reallocation{
		PaymentID:       paymentID,
		Applied:         applied,
		RemainingCredit: credit.Sub(applied),
		Sources:         sources,
	}, nil
}
