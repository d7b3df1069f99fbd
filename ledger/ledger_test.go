package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tab-ledger/ledger"
	"github.com/warp/tab-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march15 = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *store.Memory
	clock     *ledger.FixedClock
	directory *ledger.Directory
	debts     *ledger.DebtLedger
	payments  *ledger.PaymentProcessor
	credit    *ledger.CreditReallocator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemory())
}

func newFixtureOn(t *testing.T, s ledger.TxStore) *fixture {
	t.Helper()
	clock := &ledger.FixedClock{At: march15}
	f := &fixture{
		clock:     clock,
		directory: ledger.NewDirectory(s, clock),
		debts:     ledger.NewDebtLedger(s, clock),
		payments:  ledger.NewPaymentProcessor(s, clock),
		credit:    ledger.NewCreditReallocator(s, clock),
	}
	if m, ok := s.(*store.Memory); ok {
		f.store = m
	}
	return f
}

func (f *fixture) client(t *testing.T, code, name string) ledger.ClientID {
	t.Helper()
	id, err := f.directory.Register(context.Background(), ledger.NewClient{ExternalCode: code, Name: name})
	require.NoError(t, err)
	return id
}

func (f *fixture) debt(t *testing.T, clientID ledger.ClientID, amount string) ledger.DebtID {
	t.Helper()
	id, err := f.debts.OpenDebt(context.Background(), clientID, "goods", money(amount), nil)
	require.NoError(t, err)
	return id
}

func (f *fixture) pay(t *testing.T, debtID ledger.DebtID, amount, method string) ledger.PaymentID {
	t.Helper()
	id, err := f.payments.RecordPayment(context.Background(), debtID, money(amount), method)
	require.NoError(t, err)
	return id
}

func (f *fixture) get(t *testing.T, debtID ledger.DebtID) ledger.Debt {
	t.Helper()
	d, err := f.debts.Debt(context.Background(), debtID)
	require.NoError(t, err)
	return d
}

func money(s string) decimal.Decimal {
	return ledger.MustParseMoney(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, ledger.RoundCents(got).StringFixed(2), msgAndArgs...)
}

// =============================================================================
// PAYMENT LIFECYCLE
// =============================================================================

func TestLedger_PartialThenFullPayment(t *testing.T) {
	// GIVEN: A debt of 1000.00
	// WHEN: Paying 500.00 twice
	// THEN: PENDING -> PARTIAL -> PAID, remaining 500.00 then 0.00

	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "20111222", "Juan Pérez")
	debt := f.debt(t, client, "1000.00")

	status, err := f.debts.Status(ctx, debt)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, status)

	f.pay(t, debt, "500.00", "Cash")
	d := f.get(t, debt)
	assert.Equal(t, ledger.StatusPartial, d.Status)
	assertMoney(t, "500.00", d.Remaining())

	f.pay(t, debt, "500.00", "Cash")
	d = f.get(t, debt)
	assert.Equal(t, ledger.StatusPaid, d.Status)
	assertMoney(t, "0.00", d.Remaining())
	assert.False(t, d.HasCredit())
}

func TestLedger_InterestThenSettle(t *testing.T) {
	// GIVEN: A debt of 1000.00
	// WHEN: Applying 100.00 interest, then paying 1100.00
	// THEN: Original grows to 1100.00 while still PENDING, then PAID with nothing left

	f := newFixture(t)
	ctx := context.Background()
	debt := f.debt(t, f.client(t, "1", "Ana"), "1000.00")

	require.NoError(t, f.debts.ApplyInterest(ctx, debt, money("100.00")))
	d := f.get(t, debt)
	assertMoney(t, "1100.00", d.OriginalAmount)
	assertMoney(t, "0.00", d.PaidAmount)
	assert.Equal(t, ledger.StatusPending, d.Status)

	f.pay(t, debt, "1100.00", "Debit")
	d = f.get(t, debt)
	assert.Equal(t, ledger.StatusPaid, d.Status)
	assertMoney(t, "0.00", d.Remaining())
}

func TestLedger_InterestRateUsesRemaining(t *testing.T) {
	// GIVEN: A debt of 1000.00 with 400.00 paid
	// WHEN: Applying a 10% surcharge
	// THEN: 60.00 is charged (10% of 600.00) and the status stays PARTIAL

	f := newFixture(t)
	ctx := context.Background()
	debt := f.debt(t, f.client(t, "1", "Ana"), "1000.00")
	f.pay(t, debt, "400.00", "Cash")

	charged, err := f.debts.ApplyInterestRate(ctx, debt, money("10"))
	require.NoError(t, err)
	assertMoney(t, "60.00", charged)

	d := f.get(t, debt)
	assertMoney(t, "1060.00", d.OriginalAmount)
	assertMoney(t, "660.00", d.Remaining())
	assert.Equal(t, ledger.StatusPartial, d.Status)
}

func TestLedger_InterestRateRoundsToCents(t *testing.T) {
	f := newFixture(t)
	debt := f.debt(t, f.client(t, "1", "Ana"), "333.33")

	charged, err := f.debts.ApplyInterestRate(context.Background(), debt, money("3"))
	require.NoError(t, err)
	assertMoney(t, "10.00", charged) // 9.9999
	assertMoney(t, "343.33", f.get(t, debt).OriginalAmount)
}

func TestLedger_InterestOnPaidDebtRejected(t *testing.T) {
	f := newFixture(t)
	debt := f.debt(t, f.client(t, "1", "Ana"), "100.00")
	f.pay(t, debt, "100.00", "Cash")

	_, err := f.debts.ApplyInterestRate(context.Background(), debt, money("10"))
	assert.ErrorIs(t, err, ledger.ErrAlreadyPaid)
}

func TestLedger_OverpaymentBecomesCredit(t *testing.T) {
	// GIVEN: A debt of 300.00
	// WHEN: The client pays 500.00
	// THEN: The debt is PAID, remaining is -200.00 and 200.00 of credit is available

	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "1", "Marta")
	debt := f.debt(t, client, "300.00")
	f.pay(t, debt, "500.00", "Cash")

	d := f.get(t, debt)
	assert.Equal(t, ledger.StatusPaid, d.Status)
	assertMoney(t, "-200.00", d.Remaining())
	assertMoney(t, "200.00", d.Surplus())
	assert.True(t, d.HasCredit())

	credit, err := f.debts.ClientCreditAvailable(ctx, client)
	require.NoError(t, err)
	assertMoney(t, "200.00", credit)

	balance, err := f.debts.ClientBalance(ctx, client)
	require.NoError(t, err)
	assertMoney(t, "-200.00", balance)
}

func TestLedger_BlankMethodDefaultsToCash(t *testing.T) {
	f := newFixture(t)
	debt := f.debt(t, f.client(t, "1", "Ana"), "100.00")
	f.pay(t, debt, "50.00", "   ")

	d := f.get(t, debt)
	assert.Equal(t, ledger.MethodCash, d.LastPaymentMethod)
	require.NotNil(t, d.LastPaymentAt)
	assert.True(t, d.LastPaymentAt.Equal(march15))
}

func TestLedger_HistoryMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	debt := f.debt(t, f.client(t, "1", "Ana"), "1000.00")

	first := f.pay(t, debt, "100.00", "Cash")
	f.clock.Advance(time.Hour)
	second := f.pay(t, debt, "200.00", "Debit (Banco X)")

	history, err := f.payments.History(context.Background(), debt)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, "Debit (Banco X)", history[0].Method, "labels are stored verbatim")
	assert.Equal(t, first, history[1].ID)
}

func TestLedger_SettleWithInterest(t *testing.T) {
	f := newFixture(t)
	debt := f.debt(t, f.client(t, "1", "Ana"), "1000.00")

	_, err := f.payments.SettleWithInterest(context.Background(), debt, money("100.00"), money("1100.00"), "Cash")
	require.NoError(t, err)

	d := f.get(t, debt)
	assertMoney(t, "1100.00", d.OriginalAmount)
	assert.Equal(t, ledger.StatusPaid, d.Status)
}

// =============================================================================
// CREDIT REALLOCATION
// =============================================================================

func TestReallocate_MovesSurplusToOpenDebt(t *testing.T) {
	// GIVEN: Debt A overpaid by 200.00 and debt B with 500.00 open, same client
	// WHEN: Reallocating onto B
	// THEN: 200.00 applied, B has 300.00 left, A has no surplus, no credit remains

	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "1", "Marta")
	a := f.debt(t, client, "300.00")
	f.clock.Advance(time.Hour)
	b := f.debt(t, client, "500.00")
	f.pay(t, a, "500.00", "Cash")

	result, err := f.credit.Reallocate(ctx, client, b)
	require.NoError(t, err)

	assertMoney(t, "200.00", result.Applied)
	assertMoney(t, "0.00", result.RemainingCredit)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, a, result.Sources[0].DebtID)
	assertMoney(t, "200.00", result.Sources[0].Amount)

	target := f.get(t, b)
	assertMoney(t, "300.00", target.Remaining())
	assert.Equal(t, ledger.StatusPartial, target.Status)
	assert.Equal(t, ledger.MethodCreditTransfer, target.LastPaymentMethod)

	source := f.get(t, a)
	assertMoney(t, "0.00", source.Surplus())
	assert.Equal(t, ledger.StatusPaid, source.Status)

	credit, err := f.credit.AvailableCredit(ctx, client)
	require.NoError(t, err)
	assertMoney(t, "0.00", credit)

	history, err := f.payments.History(ctx, b)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsCreditTransfer())
}

func TestReallocate_CreditLargerThanTarget(t *testing.T) {
	// GIVEN: 500.00 of surplus spread over two debts and a target owing 250.00
	// WHEN: Reallocating
	// THEN: Only 250.00 moves, taken from the oldest surplus first

	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "1", "Marta")

	older := f.debt(t, client, "100.00")
	f.clock.Advance(time.Hour)
	newer := f.debt(t, client, "100.00")
	f.clock.Advance(time.Hour)
	target := f.debt(t, client, "250.00")

	f.pay(t, older, "300.00", "Cash") // 200 surplus
	f.pay(t, newer, "400.00", "Cash") // 300 surplus

	before, err := f.credit.AvailableCredit(ctx, client)
	require.NoError(t, err)

	result, err := f.credit.Reallocate(ctx, client, target)
	require.NoError(t, err)

	assertMoney(t, "250.00", result.Applied)
	assertMoney(t, "250.00", result.RemainingCredit)
	assert.True(t, before.Equal(result.Applied.Add(result.RemainingCredit)), "credit is conserved")

	require.Len(t, result.Sources, 2)
	assert.Equal(t, older, result.Sources[0].DebtID)
	assertMoney(t, "200.00", result.Sources[0].Amount)
	assert.Equal(t, newer, result.Sources[1].DebtID)
	assertMoney(t, "50.00", result.Sources[1].Amount)

	assertMoney(t, "0.00", f.get(t, older).Surplus())
	assertMoney(t, "250.00", f.get(t, newer).Surplus())
	assert.Equal(t, ledger.StatusPaid, f.get(t, target).Status)
}

func TestReallocate_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no credit", func(t *testing.T) {
		f := newFixture(t)
		client := f.client(t, "1", "Marta")
		target := f.debt(t, client, "100.00")

		_, err := f.credit.Reallocate(ctx, client, target)
		assert.ErrorIs(t, err, ledger.ErrNoCreditAvailable)
	})

	t.Run("target belongs to someone else", func(t *testing.T) {
		f := newFixture(t)
		marta := f.client(t, "1", "Marta")
		juan := f.client(t, "2", "Juan")
		f.pay(t, f.debt(t, marta, "100.00"), "150.00", "Cash")
		other := f.debt(t, juan, "100.00")

		_, err := f.credit.Reallocate(ctx, marta, other)
		assert.ErrorIs(t, err, ledger.ErrInvalidReallocation)
	})

	t.Run("target already paid", func(t *testing.T) {
		f := newFixture(t)
		client := f.client(t, "1", "Marta")
		overpaid := f.debt(t, client, "100.00")
		f.pay(t, overpaid, "150.00", "Cash")

		_, err := f.credit.Reallocate(ctx, client, overpaid)
		assert.ErrorIs(t, err, ledger.ErrAlreadyPaid)
	})

	t.Run("missing target", func(t *testing.T) {
		f := newFixture(t)
		client := f.client(t, "1", "Marta")
		f.pay(t, f.debt(t, client, "100.00"), "150.00", "Cash")

		_, err := f.credit.Reallocate(ctx, client, 999)
		assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
	})

	t.Run("missing client", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.credit.Reallocate(ctx, 42, 1)
		assert.ErrorIs(t, err, ledger.ErrClientNotFound)
	})
}

func TestPayment_ReservedMethodRejected(t *testing.T) {
	f := newFixture(t)
	debt := f.debt(t, f.client(t, "1", "Ana"), "100.00")

	_, err := f.payments.RecordPayment(context.Background(), debt, money("10"), ledger.MethodCreditTransfer)
	assert.ErrorIs(t, err, ledger.ErrReservedMethod)
	assert.True(t, ledger.IsClientError(err))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestSubCentAmounts(t *testing.T) {
	// GIVEN: An open debt
	// WHEN: Charging interest or paying an amount below half a cent
	// THEN: It is rejected since it rounds to 0.00; half a cent rounds up and is accepted

	f := newFixture(t)
	ctx := context.Background()
	debt := f.debt(t, f.client(t, "1", "Ana"), "100.00")

	err := f.debts.ApplyInterest(ctx, debt, money("0.004"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = f.payments.RecordPayment(ctx, debt, money("0.004"), "Cash")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assertMoney(t, "100.00", f.get(t, debt).OriginalAmount)
	assertMoney(t, "0.00", f.get(t, debt).PaidAmount)

	require.NoError(t, f.debts.ApplyInterest(ctx, debt, money("0.005")))
	assert.Equal(t, "100.005", f.get(t, debt).OriginalAmount.String(), "stored exact")
}

func TestOpenDebt_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "1", "Ana")

	for _, amount := range []string{"0", "-10", "0.004"} {
		_, err := f.debts.OpenDebt(ctx, client, "x", money(amount), nil)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "amount %s", amount)

		var amountErr *ledger.AmountError
		if assert.ErrorAs(t, err, &amountErr) {
			assert.Equal(t, "amount", amountErr.Field)
		}
	}

	tomorrow := march15.Add(24 * time.Hour)
	_, err := f.debts.OpenDebt(ctx, client, "x", money("10"), &tomorrow)
	assert.ErrorIs(t, err, ledger.ErrFutureDate)

	lastWeek := march15.Add(-7 * 24 * time.Hour)
	id, err := f.debts.OpenDebt(ctx, client, "x", money("10"), &lastWeek)
	require.NoError(t, err)
	assert.True(t, f.get(t, id).CreatedAt.Equal(lastWeek), "backdating is allowed")

	_, err = f.debts.OpenDebt(ctx, 999, "x", money("10"), nil)
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)
}

func TestPayment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	debt := f.debt(t, f.client(t, "1", "Ana"), "100.00")

	_, err := f.payments.RecordPayment(ctx, debt, money("0"), "Cash")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.payments.RecordPayment(ctx, debt, money("-5"), "Cash")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.payments.RecordPayment(ctx, 999, money("5"), "Cash")
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
	assert.True(t, ledger.IsNotFound(err))

	err = f.debts.ApplyInterest(ctx, debt, money("0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	// Nothing above may have touched the debt.
	d := f.get(t, debt)
	assertMoney(t, "100.00", d.OriginalAmount)
	assertMoney(t, "0.00", d.PaidAmount)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestDirectory_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.directory.Register(ctx, ledger.NewClient{
		ExternalCode: " 20111222 ",
		Name:         "Juan Pérez",
		Phone:        "555-0101",
		Locality:     "Centro",
	})
	require.NoError(t, err)

	c, err := f.directory.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "20111222", c.ExternalCode)
	assert.Equal(t, "555-0101", c.Phone)

	_, err = f.directory.Register(ctx, ledger.NewClient{ExternalCode: "20111222", Name: "Someone Else"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateClient)
	assert.True(t, ledger.IsConflict(err))

	_, err = f.directory.Register(ctx, ledger.NewClient{ExternalCode: "", Name: "No Code"})
	assert.ErrorIs(t, err, ledger.ErrInvalidClient)

	_, err = f.directory.Get(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)
}

func TestDirectory_FindIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []ledger.NewClient{
		{ExternalCode: "3", Name: "Óscar Núñez", Locality: "Centro"},
		{ExternalCode: "1", Name: "ana gómez", Locality: "Barrio Norte"},
		{ExternalCode: "2", Name: "Juan Pérez", Locality: "CENTRO"},
	} {
		_, err := f.directory.Register(ctx, c)
		require.NoError(t, err)
	}

	all, err := f.directory.Find(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ana gómez", all[0].Name, "sorted by name ignoring case")

	centro, err := f.directory.Find(ctx, "centro")
	require.NoError(t, err)
	assert.Len(t, centro, 2)

	accent, err := f.directory.Find(ctx, "ÓSCAR")
	require.NoError(t, err)
	require.Len(t, accent, 1)
	assert.Equal(t, "3", accent[0].ExternalCode)

	byCode, err := f.directory.Find(ctx, "2")
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, "Juan Pérez", byCode[0].Name)
}

func TestDirectory_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "1", "Ana")
	debt := f.debt(t, client, "100.00")
	f.pay(t, debt, "10.00", "Cash")

	require.NoError(t, f.directory.Delete(ctx, client))

	_, err := f.debts.Debt(ctx, debt)
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)

	payments, err := f.store.ListPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	assert.ErrorIs(t, f.directory.Delete(ctx, client), ledger.ErrClientNotFound)
}

func TestLedger_DeleteDebtCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "1", "Ana")
	keep := f.debt(t, client, "50.00")
	drop := f.debt(t, client, "100.00")
	f.pay(t, drop, "10.00", "Cash")

	require.NoError(t, f.debts.DeleteDebt(ctx, drop))

	debts, err := f.debts.Debts(ctx, client)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, keep, debts[0].ID)

	payments, err := f.store.ListPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	assert.ErrorIs(t, f.debts.DeleteDebt(ctx, drop), ledger.ErrDebtNotFound)
}

func TestLedger_Balances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ana := f.client(t, "1", "Ana")
	juan := f.client(t, "2", "Juan")
	f.debt(t, ana, "100.00")
	f.pay(t, f.debt(t, ana, "50.00"), "80.00", "Cash")
	f.debt(t, juan, "20.00")

	balances, err := f.debts.Balances(ctx, "")
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.Equal(t, ana, balances[0].Client.ID)
	assertMoney(t, "70.00", balances[0].Owed)
	assertMoney(t, "30.00", balances[0].Credit)

	assert.Equal(t, juan, balances[1].Client.ID)
	assertMoney(t, "20.00", balances[1].Owed)
	assertMoney(t, "0.00", balances[1].Credit)

	_, err = f.debts.Debts(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)
}
