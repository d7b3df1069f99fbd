// Package storetest is the behavioural contract every ledger.TxStore must
// meet. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tab-ledger/ledger"
)

// Factory returns an empty store. It should register its own cleanup.
type Factory func(t *testing.T) ledger.TxStore

var base = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.TxStore)
	}{
		{"ClientRoundTrip", testClientRoundTrip},
		{"DuplicateExternalCode", testDuplicateExternalCode},
		{"MissingRows", testMissingRows},
		{"DebtRoundTrip", testDebtRoundTrip},
		{"DebtOrdering", testDebtOrdering},
		{"PaymentOrdering", testPaymentOrdering},
		{"PaymentsInRange", testPaymentsInRange},
		{"CascadeDeletes", testCascadeDeletes},
		{"TxRollback", testTxRollback},
		{"TxCommit", testTxCommit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func money(s string) decimal.Decimal {
	return ledger.MustParseMoney(s)
}

func insertClient(t *testing.T, s ledger.Store, code string) ledger.ClientID {
	t.Helper()
	id, err := s.InsertClient(context.Background(), ledger.Client{
		ExternalCode: code,
		Name:         "Client " + code,
		CreatedAt:    base,
	})
	require.NoError(t, err)
	return id
}

func insertDebt(t *testing.T, s ledger.Store, clientID ledger.ClientID, amount string, at time.Time) ledger.DebtID {
	t.Helper()
	d := ledger.Debt{
		ClientID:       clientID,
		OriginalAmount: money(amount),
		PaidAmount:     decimal.Zero,
		CreatedAt:      at,
	}
	d.Refresh()
	id, err := s.InsertDebt(context.Background(), d)
	require.NoError(t, err)
	return id
}

func insertPayment(t *testing.T, s ledger.Store, debtID ledger.DebtID, amount string, at time.Time) ledger.PaymentID {
	t.Helper()
	id, err := s.InsertPayment(context.Background(), ledger.Payment{
		DebtID: debtID,
		Amount: money(amount),
		PaidAt: at,
		Method: "Cash",
	})
	require.NoError(t, err)
	return id
}

func testClientRoundTrip(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	id, err := s.InsertClient(ctx, ledger.Client{
		ExternalCode: "20111222",
		Name:         "Juan Pérez",
		Phone:        "555-0101",
		Locality:     "Centro",
		CreatedAt:    base,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	c, err := s.GetClient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, "20111222", c.ExternalCode)
	assert.Equal(t, "Juan Pérez", c.Name)
	assert.Equal(t, "555-0101", c.Phone)
	assert.Equal(t, "Centro", c.Locality)
	assert.True(t, c.CreatedAt.Equal(base))

	second := insertClient(t, s, "2")
	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, id, clients[0].ID)
	assert.Equal(t, second, clients[1].ID)
}

func testDuplicateExternalCode(t *testing.T, s ledger.TxStore) {
	insertClient(t, s, "dup")
	_, err := s.InsertClient(context.Background(), ledger.Client{ExternalCode: "dup", Name: "Other", CreatedAt: base})
	assert.ErrorIs(t, err, ledger.ErrDuplicateClient)
}

func testMissingRows(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	_, err := s.GetClient(ctx, 404)
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)
	assert.ErrorIs(t, s.DeleteClient(ctx, 404), ledger.ErrClientNotFound)

	_, err = s.GetDebt(ctx, 404)
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
	assert.ErrorIs(t, s.DeleteDebt(ctx, 404), ledger.ErrDebtNotFound)
	assert.ErrorIs(t, s.UpdateDebt(ctx, ledger.Debt{ID: 404}), ledger.ErrDebtNotFound)

	_, err = s.InsertDebt(ctx, ledger.Debt{ClientID: 404, OriginalAmount: money("1"), CreatedAt: base})
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)

	_, err = s.InsertPayment(ctx, ledger.Payment{DebtID: 404, Amount: money("1"), PaidAt: base, Method: "Cash"})
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
}

func testDebtRoundTrip(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	client := insertClient(t, s, "1")
	id := insertDebt(t, s, client, "1000.10", base)

	d, err := s.GetDebt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, client, d.ClientID)
	assert.True(t, d.OriginalAmount.Equal(money("1000.10")))
	assert.True(t, d.PaidAmount.IsZero())
	assert.Equal(t, ledger.StatusPending, d.Status)
	assert.Nil(t, d.LastPaymentAt)

	// Exact decimals survive storage.
	paidAt := base.Add(time.Hour)
	d.PaidAmount = money("333.333333")
	d.LastPaymentAt = &paidAt
	d.LastPaymentMethod = "Debit (Banco X)"
	d.Refresh()
	require.NoError(t, s.UpdateDebt(ctx, d))

	got, err := s.GetDebt(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(money("333.333333")), "got %s", got.PaidAmount)
	assert.Equal(t, ledger.StatusPartial, got.Status)
	require.NotNil(t, got.LastPaymentAt)
	assert.True(t, got.LastPaymentAt.Equal(paidAt))
	assert.Equal(t, "Debit (Banco X)", got.LastPaymentMethod)
	assert.True(t, got.CreatedAt.Equal(base))
}

func testDebtOrdering(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	a := insertClient(t, s, "a")
	b := insertClient(t, s, "b")

	late := insertDebt(t, s, a, "1", base.Add(2*time.Hour))
	early := insertDebt(t, s, a, "1", base)
	tie := insertDebt(t, s, a, "1", base) // same instant, higher ID
	insertDebt(t, s, b, "1", base)

	debts, err := s.DebtsByClient(ctx, a)
	require.NoError(t, err)
	require.Len(t, debts, 3)
	assert.Equal(t, []ledger.DebtID{early, tie, late}, []ledger.DebtID{debts[0].ID, debts[1].ID, debts[2].ID})

	all, err := s.ListDebts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, late, all[3].ID)
}

func testPaymentOrdering(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	debt := insertDebt(t, s, insertClient(t, s, "1"), "100", base)

	first := insertPayment(t, s, debt, "10", base.Add(time.Hour))
	second := insertPayment(t, s, debt, "20", base.Add(2*time.Hour))

	byDebt, err := s.PaymentsByDebt(ctx, debt)
	require.NoError(t, err)
	require.Len(t, byDebt, 2)
	assert.Equal(t, second, byDebt[0].ID, "most recent first")
	assert.Equal(t, first, byDebt[1].ID)
	assert.True(t, byDebt[0].Amount.Equal(money("20")))

	all, err := s.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID, "oldest first")
}

func testPaymentsInRange(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	debt := insertDebt(t, s, insertClient(t, s, "1"), "100", base)

	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	insertPayment(t, s, debt, "1", from.Add(-time.Nanosecond))
	atStart := insertPayment(t, s, debt, "2", from)
	inside := insertPayment(t, s, debt, "3", from.Add(15*24*time.Hour))
	insertPayment(t, s, debt, "4", to)

	got, err := s.PaymentsInRange(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, atStart, got[0].ID)
	assert.Equal(t, inside, got[1].ID)

	// Bounds in another zone describe the same instants.
	art := time.FixedZone("ART", -3*60*60)
	got, err = s.PaymentsInRange(ctx, from.In(art), to.In(art))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func testCascadeDeletes(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	client := insertClient(t, s, "1")
	other := insertClient(t, s, "2")
	d1 := insertDebt(t, s, client, "100", base)
	d2 := insertDebt(t, s, client, "100", base)
	kept := insertDebt(t, s, other, "100", base)
	insertPayment(t, s, d1, "10", base)
	insertPayment(t, s, d2, "10", base)
	insertPayment(t, s, kept, "10", base)

	require.NoError(t, s.DeleteDebt(ctx, d1))
	payments, err := s.ListPayments(ctx)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	require.NoError(t, s.DeleteClient(ctx, client))
	_, err = s.GetDebt(ctx, d2)
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)

	payments, err = s.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, kept, payments[0].DebtID)
}

func testTxRollback(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	client := insertClient(t, s, "1")
	debt := insertDebt(t, s, client, "100", base)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		d, err := tx.GetDebt(ctx, debt)
		if err != nil {
			return err
		}
		d.PaidAmount = money("60")
		d.Refresh()
		if err := tx.UpdateDebt(ctx, d); err != nil {
			return err
		}
		if _, err := tx.InsertPayment(ctx, ledger.Payment{DebtID: debt, Amount: money("60"), PaidAt: base, Method: "Cash"}); err != nil {
			return err
		}
		if _, err := tx.InsertClient(ctx, ledger.Client{ExternalCode: "2", Name: "Two", CreatedAt: base}); err != nil {
			return err
		}

		// Writes are visible inside the scope.
		inside, err := tx.GetDebt(ctx, debt)
		if err != nil {
			return err
		}
		assert.True(t, inside.PaidAmount.Equal(money("60")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	d, err := s.GetDebt(ctx, debt)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.IsZero())
	assert.Equal(t, ledger.StatusPending, d.Status)

	payments, err := s.ListPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func testTxCommit(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	var id ledger.ClientID
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		id, err = tx.InsertClient(ctx, ledger.Client{ExternalCode: "1", Name: "One", CreatedAt: base})
		return err
	})
	require.NoError(t, err)

	c, err := s.GetClient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "One", c.Name)
}
