/*
Package reporting aggregates the payment log and debt table into read-only views.

PURPOSE:
  The shop's dashboards: how much came in this month, by which method, who
  owes the most, and how revenue moved month over month. Every number here
  is derived from the same rows the ledger writes, so reports and balances
  always agree.

REVENUE:
  Revenue is money received. A credit-transfer payment only moves an earlier
  overpayment onto another debt, so it is reported on its own
  (MonthSummary.CreditTransferred) and left out of revenue and the method
  breakdown. Otherwise the original overpayment would be counted twice.

  Σ PaymentMethodBreakdown(m).Amount == MonthlyRevenue(m), to the cent.

METHOD NORMALISATION:
  "Debit (Banco X)" and "Debit" are the same bucket. NormalizeMethod keeps
  the label up to the first " (" and trims it. Stored labels are never
  rewritten.

MONTHS:
  A payment belongs to the calendar month of its timestamp in the engine's
  location (time.Local unless WithLocation says otherwise).

DUST:
  Totals at or below the dust threshold (default 0.005) are rounding noise
  and are left out of TopDebtors.

USAGE:
  engine := reporting.NewEngine(store, reporting.WithLocation(loc))
  revenue, err := engine.MonthlyRevenue(ctx, ledger.YearMonth{Year: 2025, Month: time.March})

SEE ALSO:
  - ledger/payments.go: The payment log
  - ledger/credit.go:   Where credit-transfer payments come from
*/
package reporting

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tab-ledger/ledger"
)

// DefaultDustThreshold is half a cent.
var DefaultDustThreshold = decimal.RequireFromString("0.005")

// =============================================================================
// RESULT TYPES
// =============================================================================

// MethodShare is one bucket of the payment method breakdown.
type MethodShare struct {
	Method     string
	Amount     decimal.Decimal
	Percentage decimal.Decimal // 0-100, two decimals
}

// Debtor is one row of the top-debtor ranking.
type Debtor struct {
	ClientID  ledger.ClientID
	Name      string
	TotalOwed decimal.Decimal
}

// MonthlyTotal is the revenue of one calendar month.
type MonthlyTotal struct {
	Month  ledger.YearMonth
	Amount decimal.Decimal
}

// MonthSummary is the month view of the dashboard.
type MonthSummary struct {
	Month             ledger.YearMonth
	Revenue           decimal.Decimal
	CreditTransferred decimal.Decimal
	Payments          int // revenue payments only
	Methods           []MethodShare
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store ledger.Store
	loc   *time.Location
	dust  decimal.Decimal
}

type Option func(*Engine)

// WithLocation sets the time zone months are cut in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithDustThreshold overrides DefaultDustThreshold. Negative values are ignored.
func WithDustThreshold(d decimal.Decimal) Option {
	return func(e *Engine) {
		if !d.IsNegative() {
			e.dust = d
		}
	}
}

func NewEngine(store ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		loc:   time.Local,
		dust:  DefaultDustThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MonthlyRevenue sums the revenue payments of the month. Credit-transfer
// payments move money already counted and are left out; see MonthSummary.
func (e *Engine) MonthlyRevenue(ctx context.Context, ym ledger.YearMonth) (decimal.Decimal, error) {
	payments, err := e.monthPayments(ctx, ym)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		if !p.IsCreditTransfer() {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// PaymentMethodBreakdown groups the month's revenue by normalised method,
// largest first.
func (e *Engine) PaymentMethodBreakdown(ctx context.Context, ym ledger.YearMonth) ([]MethodShare, error) {
	payments, err := e.monthPayments(ctx, ym)
	if err != nil {
		return nil, err
	}
	return breakdown(payments), nil
}

// MonthSummary returns revenue, breakdown and credit moved for one month.
func (e *Engine) MonthSummary(ctx context.Context, ym ledger.YearMonth) (MonthSummary, error) {
	payments, err := e.monthPayments(ctx, ym)
	if err != nil {
		return MonthSummary{}, err
	}

	summary := MonthSummary{
		Month:             ym,
		Revenue:           decimal.Zero,
		CreditTransferred: decimal.Zero,
		Methods:           breakdown(payments),
	}
	for _, p := range payments {
		if p.IsCreditTransfer() {
			summary.CreditTransferred = summary.CreditTransferred.Add(p.Amount)
			continue
		}
		summary.Revenue = summary.Revenue.Add(p.Amount)
		summary.Payments++
	}
	return summary, nil
}

// TopDebtors ranks clients by what they owe. Clients at or below the dust
// threshold are skipped. limit <= 0 means no cap.
func (e *Engine) TopDebtors(ctx context.Context, limit int) ([]Debtor, error) {
	clients, err := e.store.ListClients(ctx)
	if err != nil {
		return nil, storageErr("top debtors", err)
	}
	debts, err := e.store.ListDebts(ctx)
	if err != nil {
		return nil, storageErr("top debtors", err)
	}

	owed := make(map[ledger.ClientID]decimal.Decimal, len(clients))
	for _, d := range debts {
		owed[d.ClientID] = owed[d.ClientID].Add(d.Remaining())
	}

	var result []Debtor
	for _, c := range clients {
		total := owed[c.ID]
		if total.LessThanOrEqual(e.dust) {
			continue
		}
		result = append(result, Debtor{ClientID: c.ID, Name: c.Name, TotalOwed: total})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].TotalOwed.Equal(result[j].TotalOwed) {
			return result[i].TotalOwed.GreaterThan(result[j].TotalOwed)
		}
		return result[i].Name < result[j].Name
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// RevenueByMonth returns revenue per calendar month over the whole log,
// most recent month first. Months without revenue are omitted, and credit
// transfers never count as revenue.
func (e *Engine) RevenueByMonth(ctx context.Context) ([]MonthlyTotal, error) {
	payments, err := e.store.ListPayments(ctx)
	if err != nil {
		return nil, storageErr("revenue by month", err)
	}

	totals := make(map[ledger.YearMonth]decimal.Decimal)
	for _, p := range payments {
		if p.IsCreditTransfer() {
			continue
		}
		ym := ledger.YearMonthOf(p.PaidAt.In(e.loc))
		totals[ym] = totals[ym].Add(p.Amount)
	}

	result := make([]MonthlyTotal, 0, len(totals))
	for ym, amount := range totals {
		result = append(result, MonthlyTotal{Month: ym, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[j].Month.Before(result[i].Month)
	})
	return result, nil
}

// NormalizeMethod strips a parenthetical suffix: "Debit (Banco X)" -> "Debit".
func NormalizeMethod(method string) string {
	if i := strings.Index(method, " ("); i >= 0 {
		method = method[:i]
	}
	return strings.TrimSpace(method)
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) monthPayments(ctx context.Context, ym ledger.YearMonth) ([]ledger.Payment, error) {
	from, to := ym.Bounds(e.loc)
	payments, err := e.store.PaymentsInRange(ctx, from, to)
	if err != nil {
		return nil, storageErr("month payments", err)
	}
	return payments, nil
}

func breakdown(payments []ledger.Payment) []MethodShare {
	total := decimal.Zero
	byMethod := make(map[string]decimal.Decimal)
	for _, p := range payments {
		if p.IsCreditTransfer() {
			continue
		}
		key := NormalizeMethod(p.Method)
		byMethod[key] = byMethod[key].Add(p.Amount)
		total = total.Add(p.Amount)
	}

	shares := make([]MethodShare, 0, len(byMethod))
	for method, amount := range byMethod {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = amount.Mul(decimal.NewFromInt(100)).Div(total).Round(2)
		}
		shares = append(shares, MethodShare{Method: method, Amount: amount, Percentage: pct})
	}
	sort.Slice(shares, func(i, j int) bool {
		if !shares[i].Amount.Equal(shares[j].Amount) {
			return shares[i].Amount.GreaterThan(shares[j].Amount)
		}
		return shares[i].Method < shares[j].Method
	})
	return shares
}

func storageErr(op string, err error) error {
	return &ledger.StorageError{Op: op, Err: err}
}
