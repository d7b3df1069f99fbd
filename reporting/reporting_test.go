package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tab-ledger/ledger"
	"github.com/warp/tab-ledger/ledger/store"
	"github.com/warp/tab-ledger/reporting"
	"github.com/warp/tab-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type shop struct {
	clock     *ledger.FixedClock
	directory *ledger.Directory
	debts     *ledger.DebtLedger
	payments  *ledger.PaymentProcessor
	credit    *ledger.CreditReallocator
	store     ledger.TxStore
}

func newShop(t *testing.T, s ledger.TxStore, start time.Time) *shop {
	t.Helper()
	clock := &ledger.FixedClock{At: start}
	return &shop{
		clock:     clock,
		directory: ledger.NewDirectory(s, clock),
		debts:     ledger.NewDebtLedger(s, clock),
		payments:  ledger.NewPaymentProcessor(s, clock),
		credit:    ledger.NewCreditReallocator(s, clock),
		store:     s,
	}
}

func (s *shop) client(t *testing.T, code, name string) ledger.ClientID {
	t.Helper()
	id, err := s.directory.Register(context.Background(), ledger.NewClient{ExternalCode: code, Name: name})
	require.NoError(t, err)
	return id
}

func (s *shop) debt(t *testing.T, clientID ledger.ClientID, amount string) ledger.DebtID {
	t.Helper()
	id, err := s.debts.OpenDebt(context.Background(), clientID, "goods", ledger.MustParseMoney(amount), nil)
	require.NoError(t, err)
	return id
}

func (s *shop) pay(t *testing.T, debtID ledger.DebtID, amount, method string) {
	t.Helper()
	_, err := s.payments.RecordPayment(context.Background(), debtID, ledger.MustParseMoney(amount), method)
	require.NoError(t, err)
}

func cents(d decimal.Decimal) string {
	return ledger.RoundCents(d).StringFixed(2)
}

var (
	feb = ledger.YearMonth{Year: 2025, Month: time.February}
	mar = ledger.YearMonth{Year: 2025, Month: time.March}
	apr = ledger.YearMonth{Year: 2025, Month: time.April}
)

// =============================================================================
// METHOD BREAKDOWN
// =============================================================================

func TestBreakdown_CollapsesAnnotatedMethods(t *testing.T) {
	// GIVEN: This month's payments "Debit" 100, "Debit (Banco X)" 200, "Cash" 50
	// WHEN: Building the method breakdown
	// THEN: Exactly two buckets: Debit 300.00 and Cash 50.00

	s := newShop(t, store.NewMemory(), time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))
	debt := s.debt(t, s.client(t, "1", "Pedro"), "1000.00")
	s.pay(t, debt, "100.00", "Debit")
	s.pay(t, debt, "200.00", "Debit (Banco X)")
	s.pay(t, debt, "50.00", "Cash")

	engine := reporting.NewEngine(s.store, reporting.WithLocation(time.UTC))
	shares, err := engine.PaymentMethodBreakdown(context.Background(), mar)
	require.NoError(t, err)

	require.Len(t, shares, 2)
	assert.Equal(t, "Debit", shares[0].Method)
	assert.Equal(t, "300.00", cents(shares[0].Amount))
	assert.Equal(t, "85.71", shares[0].Percentage.StringFixed(2))
	assert.Equal(t, "Cash", shares[1].Method)
	assert.Equal(t, "50.00", cents(shares[1].Amount))
	assert.Equal(t, "14.29", shares[1].Percentage.StringFixed(2))
}

func TestBreakdown_SumsToMonthlyRevenue(t *testing.T) {
	s := newShop(t, store.NewMemory(), time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	debt := s.debt(t, s.client(t, "1", "Pedro"), "10000.00")
	for i, m := range []string{"Cash", "Debit (Banco Nación)", "Cheque (#1234)", "Debit", "Transfer", "Cash"} {
		s.clock.Advance(time.Duration(i+1) * 24 * time.Hour)
		s.pay(t, debt, "33.33", m)
	}

	engine := reporting.NewEngine(s.store, reporting.WithLocation(time.UTC))
	ctx := context.Background()

	revenue, err := engine.MonthlyRevenue(ctx, mar)
	require.NoError(t, err)
	shares, err := engine.PaymentMethodBreakdown(ctx, mar)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, sh := range shares {
		sum = sum.Add(sh.Amount)
	}
	assert.Equal(t, cents(revenue), cents(sum))
	assert.Equal(t, "199.98", cents(revenue))
	assert.Len(t, shares, 4) // Cash, Debit, Cheque, Transfer
}

func TestNormalizeMethod(t *testing.T) {
	tests := map[string]string{
		"Debit":                "Debit",
		"Debit (Banco X)":      "Debit",
		"  Cheque (#1234)":     "Cheque",
		"Transfer (ref (a))":   "Transfer",
		"Cash(no space)":       "Cash(no space)",
		"":                     "",
		"Mercado Pago (QR)   ": "Mercado Pago",
	}
	for in, want := range tests {
		assert.Equal(t, want, reporting.NormalizeMethod(in), "input %q", in)
	}
}

// =============================================================================
// MONTHS
// =============================================================================

func TestMonthlyRevenue_MonthBoundaries(t *testing.T) {
	// GIVEN: Payments on either side of the March/April boundary in UTC-3
	// THEN: Months are cut in the engine's location, not UTC

	art := time.FixedZone("ART", -3*60*60)
	s := newShop(t, store.NewMemory(), time.Date(2025, time.March, 31, 22, 0, 0, 0, art))
	debt := s.debt(t, s.client(t, "1", "Pedro"), "1000.00")

	s.pay(t, debt, "100.00", "Cash") // March 31 22:00 ART = April 1 01:00 UTC
	s.clock.Advance(5 * time.Hour)
	s.pay(t, debt, "40.00", "Cash") // April 1 03:00 ART

	ctx := context.Background()
	local := reporting.NewEngine(s.store, reporting.WithLocation(art))
	marRevenue, err := local.MonthlyRevenue(ctx, mar)
	require.NoError(t, err)
	aprRevenue, err := local.MonthlyRevenue(ctx, apr)
	require.NoError(t, err)
	assert.Equal(t, "100.00", cents(marRevenue))
	assert.Equal(t, "40.00", cents(aprRevenue))

	utc := reporting.NewEngine(s.store, reporting.WithLocation(time.UTC))
	marRevenue, err = utc.MonthlyRevenue(ctx, mar)
	require.NoError(t, err)
	assert.Equal(t, "0.00", cents(marRevenue))
}

func TestRevenueByMonth_MostRecentFirst(t *testing.T) {
	s := newShop(t, store.NewMemory(), time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC))
	debt := s.debt(t, s.client(t, "1", "Pedro"), "5000.00")

	s.pay(t, debt, "100.00", "Cash")
	s.clock.Set(time.Date(2025, time.April, 2, 12, 0, 0, 0, time.UTC))
	s.pay(t, debt, "50.00", "Cash")
	s.pay(t, debt, "25.50", "Debit")

	totals, err := reporting.NewEngine(s.store, reporting.WithLocation(time.UTC)).RevenueByMonth(context.Background())
	require.NoError(t, err)

	require.Len(t, totals, 2, "March had no payments")
	assert.Equal(t, apr, totals[0].Month)
	assert.Equal(t, "75.50", cents(totals[0].Amount))
	assert.Equal(t, feb, totals[1].Month)
	assert.Equal(t, "100.00", cents(totals[1].Amount))
}

func TestMonthSummary_CreditTransfersReportedSeparately(t *testing.T) {
	// GIVEN: An overpayment of 200.00 later reallocated onto another debt
	// WHEN: Summarising the month
	// THEN: Revenue counts the cash once; the 200.00 transfer shows only as credit moved

	s := newShop(t, store.NewMemory(), time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	client := s.client(t, "1", "Marta")
	a := s.debt(t, client, "300.00")
	s.clock.Advance(time.Hour)
	b := s.debt(t, client, "500.00")
	s.pay(t, a, "500.00", "Cash")
	_, err := s.credit.Reallocate(ctx, client, b)
	require.NoError(t, err)

	engine := reporting.NewEngine(s.store, reporting.WithLocation(time.UTC))
	summary, err := engine.MonthSummary(ctx, mar)
	require.NoError(t, err)

	assert.Equal(t, mar, summary.Month)
	assert.Equal(t, "500.00", cents(summary.Revenue))
	assert.Equal(t, "200.00", cents(summary.CreditTransferred))
	assert.Equal(t, 1, summary.Payments)
	require.Len(t, summary.Methods, 1)
	assert.Equal(t, "Cash", summary.Methods[0].Method)
	assert.Equal(t, "100.00", summary.Methods[0].Percentage.StringFixed(2))

	revenue, err := engine.MonthlyRevenue(ctx, mar)
	require.NoError(t, err)
	assert.Equal(t, cents(summary.Revenue), cents(revenue))

	// AND: The log holds 700.00 of payments, yet only the cash counts
	all, err := s.store.ListPayments(ctx)
	require.NoError(t, err)
	logged := decimal.Zero
	for _, p := range all {
		logged = logged.Add(p.Amount)
	}
	assert.Equal(t, "700.00", cents(logged))
	assert.Equal(t, "500.00", cents(revenue))

	history, err := engine.RevenueByMonth(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "500.00", cents(history[0].Amount))
}

func TestMonthSummary_EmptyMonth(t *testing.T) {
	engine := reporting.NewEngine(store.NewMemory())
	summary, err := engine.MonthSummary(context.Background(), mar)
	require.NoError(t, err)
	assert.True(t, summary.Revenue.IsZero())
	assert.Empty(t, summary.Methods)
}

// =============================================================================
// TOP DEBTORS
// =============================================================================

func TestTopDebtors(t *testing.T) {
	// GIVEN: Clients owing 500, 1200, a dust amount, nothing, and net credit
	// THEN: Only real debtors appear, largest first, capped at the limit

	s := newShop(t, store.NewMemory(), time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC))
	ana := s.client(t, "1", "Ana")
	juan := s.client(t, "2", "Juan")
	dust := s.client(t, "3", "Dust")
	paid := s.client(t, "4", "Paid")
	credit := s.client(t, "5", "Credit")

	s.debt(t, ana, "500.00")
	s.debt(t, juan, "700.00")
	s.debt(t, juan, "500.00")

	d := s.debt(t, dust, "100.00")
	s.pay(t, d, "99.995", "Cash") // 0.005 left: at the threshold

	s.pay(t, s.debt(t, paid, "80.00"), "80.00", "Cash")
	s.pay(t, s.debt(t, credit, "80.00"), "100.00", "Cash")

	engine := reporting.NewEngine(s.store)
	ctx := context.Background()

	all, err := engine.TopDebtors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, juan, all[0].ClientID)
	assert.Equal(t, "Juan", all[0].Name)
	assert.Equal(t, "1200.00", cents(all[0].TotalOwed))
	assert.Equal(t, ana, all[1].ClientID)

	top, err := engine.TopDebtors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, juan, top[0].ClientID)

	zeroDust := reporting.NewEngine(s.store, reporting.WithDustThreshold(decimal.Zero))
	withDust, err := zeroDust.TopDebtors(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, withDust, 3)
}

// =============================================================================
// STORE PARITY
// =============================================================================

func TestReports_SameOnSQLite(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := newShop(t, db, time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))
	debt := s.debt(t, s.client(t, "1", "Pedro"), "1000.00")
	s.pay(t, debt, "100.00", "Debit")
	s.pay(t, debt, "200.00", "Debit (Banco X)")
	s.pay(t, debt, "50.00", "Cash")

	engine := reporting.NewEngine(db, reporting.WithLocation(time.UTC))
	ctx := context.Background()

	shares, err := engine.PaymentMethodBreakdown(ctx, mar)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, "Debit", shares[0].Method)
	assert.Equal(t, "300.00", cents(shares[0].Amount))

	top, err := engine.TopDebtors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "650.00", cents(top[0].TotalOwed))
}
