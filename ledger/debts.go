/*
debts.go - Debt lifecycle and balances

PURPOSE:
  The DebtLedger opens debts, grows them with interest and answers every
  balance question: per debt, per client, and how much credit a client holds.

INVARIANTS:
  1. OriginalAmount > 0 at creation and only grows (interest).
  2. PaidAmount starts at 0. Only the PaymentProcessor raises it and only
     the CreditReallocator lowers it.
  3. Status == DeriveStatus(OriginalAmount, PaidAmount) after every write.
  4. CreatedAt is never after "now".

INTEREST:
  Interest is growth of the obligation itself, not a separate line. After
  ApplyInterest(d, i), paying (old remaining + i) drives remaining to
  exactly zero.

BALANCES ARE STORED, NOT REPLAYED:
  PaidAmount on the debt row is authoritative. Payment history is for
  drill-down only, because interest and reallocation adjust the amounts
  directly.

SEE ALSO:
  - payments.go: Raising PaidAmount
  - credit.go:   Moving surplus between debts
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DEBT LEDGER
// =============================================================================

type DebtLedger struct {
	store     TxStore
	clock     Clock
	directory *Directory
}

func NewDebtLedger(store TxStore, clock Clock) *DebtLedger {
	return &DebtLedger{
		store:     store,
		clock:     clock,
		directory: NewDirectory(store, clock),
	}
}

// OpenDebt creates a PENDING debt. createdAt defaults to now and may be
// backdated but never future-dated.
func (l *DebtLedger) OpenDebt(ctx context.Context, clientID ClientID, description string, amount decimal.Decimal, createdAt *time.Time) (DebtID, error) {
	if err := positive("amount", amount); err != nil {
		return 0, err
	}
	now := l.clock.Now()
	at := now
	if createdAt != nil {
		if createdAt.After(now) {
			return 0, ErrFutureDate
		}
		at = *createdAt
	}

	d := Debt{
		ClientID:       clientID,
		OriginalAmount: amount,
		PaidAmount:     decimal.Zero,
		Description:    description,
		CreatedAt:      at,
	}
	d.Refresh()

	var id DebtID
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetClient(ctx, clientID); err != nil {
			return err
		}
		var err error
		id, err = s.InsertDebt(ctx, d)
		return err
	})
	if err != nil {
		return 0, storageErr("open debt", err)
	}
	return id, nil
}

// ApplyInterest adds interest to the debt's original amount. PaidAmount is
// untouched.
func (l *DebtLedger) ApplyInterest(ctx context.Context, debtID DebtID, interest decimal.Decimal) error {
	if err := positive("interest", interest); err != nil {
		return err
	}
	err := l.store.WithTx(ctx, func(s Store) error {
		return applyInterest(ctx, s, debtID, interest)
	})
	return storageErr("apply interest", err)
}

// ApplyInterestRate charges percent of the current remaining balance,
// rounded to cents, and returns the amount charged.
func (l *DebtLedger) ApplyInterestRate(ctx context.Context, debtID DebtID, percent decimal.Decimal) (decimal.Decimal, error) {
	if err := positive("percent", percent); err != nil {
		return decimal.Zero, err
	}

	var charged decimal.Decimal
	err := l.store.WithTx(ctx, func(s Store) error {
		d, err := s.GetDebt(ctx, debtID)
		if err != nil {
			return err
		}
		remaining := RoundCents(d.Remaining())
		if !remaining.IsPositive() {
			return ErrAlreadyPaid
		}
		charged = RoundCents(remaining.Mul(percent).Div(decimal.NewFromInt(100)))
		if err := positive("interest", charged); err != nil {
			return err
		}
		return applyInterest(ctx, s, debtID, charged)
	})
	if err != nil {
		return decimal.Zero, storageErr("apply interest rate", err)
	}
	return charged, nil
}

func applyInterest(ctx context.Context, s Store, debtID DebtID, interest decimal.Decimal) error {
	d, err := s.GetDebt(ctx, debtID)
	if err != nil {
		return err
	}
	d.OriginalAmount = d.OriginalAmount.Add(interest)
	d.Refresh()
	return s.UpdateDebt(ctx, d)
}

// DeleteDebt removes a debt and its payments.
func (l *DebtLedger) DeleteDebt(ctx context.Context, debtID DebtID) error {
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetDebt(ctx, debtID); err != nil {
			return err
		}
		return s.DeleteDebt(ctx, debtID)
	})
	return storageErr("delete debt", err)
}

// =============================================================================
// QUERIES
// =============================================================================

// Debt returns a single debt.
func (l *DebtLedger) Debt(ctx context.Context, debtID DebtID) (Debt, error) {
	d, err := l.store.GetDebt(ctx, debtID)
	if err != nil {
		return Debt{}, storageErr("get debt", err)
	}
	return d, nil
}

// Debts returns a client's debts, oldest first.
func (l *DebtLedger) Debts(ctx context.Context, clientID ClientID) ([]Debt, error) {
	if _, err := l.directory.Get(ctx, clientID); err != nil {
		return nil, err
	}
	debts, err := l.store.DebtsByClient(ctx, clientID)
	if err != nil {
		return nil, storageErr("list debts", err)
	}
	return debts, nil
}

// Remaining returns original - paid for one debt.
func (l *DebtLedger) Remaining(ctx context.Context, debtID DebtID) (decimal.Decimal, error) {
	d, err := l.Debt(ctx, debtID)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Remaining(), nil
}

// Status derives the status from the stored amounts rather than trusting
// the cached column.
func (l *DebtLedger) Status(ctx context.Context, debtID DebtID) (Status, error) {
	d, err := l.Debt(ctx, debtID)
	if err != nil {
		return "", err
	}
	return DeriveStatus(d.OriginalAmount, d.PaidAmount), nil
}

// ClientBalance sums remaining over every debt of the client. A negative
// result means the client is in net credit.
func (l *DebtLedger) ClientBalance(ctx context.Context, clientID ClientID) (decimal.Decimal, error) {
	debts, err := l.Debts(ctx, clientID)
	if err != nil {
		return decimal.Zero, err
	}
	owed, _ := totals(debts)
	return owed, nil
}

// ClientCreditAvailable sums max(0, paid - original) over the client's debts.
func (l *DebtLedger) ClientCreditAvailable(ctx context.Context, clientID ClientID) (decimal.Decimal, error) {
	debts, err := l.Debts(ctx, clientID)
	if err != nil {
		return decimal.Zero, err
	}
	_, credit := totals(debts)
	return credit, nil
}

// Balances lists the clients matching query with what each owes and the
// credit each holds, in directory order.
func (l *DebtLedger) Balances(ctx context.Context, query string) ([]ClientBalance, error) {
	clients, err := l.directory.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	all, err := l.store.ListDebts(ctx)
	if err != nil {
		return nil, storageErr("list debts", err)
	}

	byClient := make(map[ClientID][]Debt)
	for _, d := range all {
		byClient[d.ClientID] = append(byClient[d.ClientID], d)
	}

	result := make([]ClientBalance, 0, len(clients))
	for _, c := range clients {
		owed, credit := totals(byClient[c.ID])
		result = append(result, ClientBalance{Client: c, Owed: owed, Credit: credit})
	}
	return result, nil
}

func totals(debts []Debt) (owed, credit decimal.Decimal) {
	owed, credit = decimal.Zero, decimal.Zero
	for _, d := range debts {
		owed = owed.Add(d.Remaining())
		credit = credit.Add(d.Surplus())
	}
	return owed, credit
}
