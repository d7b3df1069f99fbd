/*
payments.go - Recording payments against debts

PURPOSE:
  The PaymentProcessor is the only writer of new money into the ledger.
  Each call raises a debt's PaidAmount and appends one Payment row, in one
  transaction, so a reader never sees one without the other.

OVERPAYMENT:
  Paying more than the remaining balance is allowed. The debt becomes PAID
  and the excess shows up as credit that the CreditReallocator can move.

METHOD LABELS:
  The method is stored verbatim ("Debit (branch X)"). Normalisation happens
  only in reports. The credit-transfer label is reserved for reallocation.

SEE ALSO:
  - credit.go:             Uses recordPayment inside its own transaction
  - reporting/reporting.go: Aggregates the payment log
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT PROCESSOR
// =============================================================================

type PaymentProcessor struct {
	store TxStore
	clock Clock
}

func NewPaymentProcessor(store TxStore, clock Clock) *PaymentProcessor {
	return &PaymentProcessor{store: store, clock: clock}
}

// RecordPayment applies amount to the debt and appends a Payment.
// A blank method is recorded as MethodCash.
func (p *PaymentProcessor) RecordPayment(ctx context.Context, debtID DebtID, amount decimal.Decimal, method string) (PaymentID, error) {
	method, err := validatePayment(amount, method)
	if err != nil {
		return 0, err
	}

	var id PaymentID
	err = p.store.WithTx(ctx, func(s Store) error {
		var err error
		id, err = recordPayment(ctx, s, debtID, amount, method, p.clock.Now())
		return err
	})
	if err != nil {
		return 0, storageErr("record payment", err)
	}
	return id, nil
}

// SettleWithInterest applies interest and then records a payment as one
// unit. Either both land or neither does.
func (p *PaymentProcessor) SettleWithInterest(ctx context.Context, debtID DebtID, interest, amount decimal.Decimal, method string) (PaymentID, error) {
	if err := positive("interest", interest); err != nil {
		return 0, err
	}
	method, err := validatePayment(amount, method)
	if err != nil {
		return 0, err
	}

	var id PaymentID
	err = p.store.WithTx(ctx, func(s Store) error {
		if err := applyInterest(ctx, s, debtID, interest); err != nil {
			return err
		}
		var err error
		id, err = recordPayment(ctx, s, debtID, amount, method, p.clock.Now())
		return err
	})
	if err != nil {
		return 0, storageErr("settle with interest", err)
	}
	return id, nil
}

// History returns the debt's payments, most recent first.
func (p *PaymentProcessor) History(ctx context.Context, debtID DebtID) ([]Payment, error) {
	if _, err := p.store.GetDebt(ctx, debtID); err != nil {
		return nil, storageErr("payment history", err)
	}
	payments, err := p.store.PaymentsByDebt(ctx, debtID)
	if err != nil {
		return nil, storageErr("payment history", err)
	}
	return payments, nil
}

func validatePayment(amount decimal.Decimal, method string) (string, error) {
	if err := positive("amount", amount); err != nil {
		return "", err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = MethodCash
	}
	if method == MethodCreditTransfer {
		return "", ErrReservedMethod
	}
	return method, nil
}

// recordPayment runs inside the caller's transaction. It does not validate
// the method so reallocation can use the reserved label.
func recordPayment(ctx context.Context, s Store, debtID DebtID, amount decimal.Decimal, method string, at time.Time) (PaymentID, error) {
	d, err := s.GetDebt(ctx, debtID)
	if err != nil {
		return 0, err
	}

	d.PaidAmount = d.PaidAmount.Add(amount)
	d.LastPaymentAt = &at
	d.LastPaymentMethod = method
	d.Refresh()
	if err := s.UpdateDebt(ctx, d); err != nil {
		return 0, err
	}

	return s.InsertPayment(ctx, Payment{
		DebtID: debtID,
		Amount: amount,
		PaidAt: at,
		Method: method,
	})
}
