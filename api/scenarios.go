/*
scenarios.go - Demo datasets for testing and demonstrations

PURPOSE:

	Provides pre-built datasets that populate the store with a realistic
	shop tab. Each one exercises a specific ledger rule so it can be
	inspected through the API right after loading.

AVAILABLE SCENARIOS:

	partial-payments:    A debt paid off in two halves
	interest-surcharge:  10% interest on an untouched debt, then settled
	credit-reallocation: One overpaid debt and one open debt, ready to reallocate
	monthly-report:      Debit, Debit (Banco X) and Cash payments this month
	corner-shop:         Several clients across the last three months

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Replay history through the real ledger components, on a clock that
    starts in the past and moves forward step by step
 3. Nothing is written directly: every row passes the same validation and
    transactions as live traffic

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "credit-reallocation"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxx(ctx, d *demo)
 3. Add case to loadScenario

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - ledger/clock.go: FixedClock used for replay
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tab-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "partial-payments",
		Name:        "Partial Payments",
		Description: "Debt of 1000.00 paid 500.00 then 500.00: PENDING, PARTIAL, PAID",
	},
	{
		ID:          "interest-surcharge",
		Name:        "Interest Surcharge",
		Description: "10% interest on a 1000.00 debt, then settled with 1100.00",
	},
	{
		ID:          "credit-reallocation",
		Name:        "Credit Reallocation",
		Description: "200.00 of overpayment on one debt, 500.00 open on another",
	},
	{
		ID:          "monthly-report",
		Name:        "Monthly Report",
		Description: "Debit, Debit (Banco X) and Cash payments collapsing into two buckets",
	},
	{
		ID:          "corner-shop",
		Name:        "Corner Shop",
		Description: "Several clients with debts, payments and interest over three months",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a dataset.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	err := h.loadScenario(ctx, req.ScenarioID)
	h.metrics.RecordOperation("load_scenario", err)
	if err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%q", req.ScenarioID))
			return
		}
		h.writeLedgerError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetStore deletes all data.
// POST /api/scenarios/reset
func (h *Handler) ResetStore(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		h.writeLedgerError(w, "Failed to reset store", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context, *demo)
	switch id {
	case "partial-payments":
		load = loadPartialPayments
	case "interest-surcharge":
		load = loadInterestSurcharge
	case "credit-reallocation":
		load = loadCreditReallocation
	case "monthly-report":
		load = loadMonthlyReport
	case "corner-shop":
		load = loadCornerShop
	default:
		return errUnknownScenario
	}

	if err := h.store.Reset(ctx); err != nil {
		return err
	}
	d := h.newDemo()
	load(ctx, d)
	return d.err
}

// =============================================================================
// LOADERS
// =============================================================================

func loadPartialPayments(ctx context.Context, d *demo) {
	d.rewind(0, 10)
	juan := d.client(ctx, "20111222", "Juan Pérez", "555-0101", "Centro")
	debt := d.debt(ctx, juan, "Groceries", "1000.00")

	d.advance(2 * 24 * time.Hour)
	d.pay(ctx, debt, "500.00", "Cash")

	d.advance(3 * 24 * time.Hour)
	d.pay(ctx, debt, "500.00", "Debit")

	// A second, still partial, tab for contrast.
	ana := d.client(ctx, "27333444", "Ana Gómez", "555-0102", "Barrio Norte")
	other := d.debt(ctx, ana, "Cleaning supplies", "450.00")
	d.advance(24 * time.Hour)
	d.pay(ctx, other, "150.00", "Cash")
}

func loadInterestSurcharge(ctx context.Context, d *demo) {
	d.rewind(1, 5)
	luis := d.client(ctx, "20555666", "Luis Romero", "555-0201", "Villa Sur")
	debt := d.debt(ctx, luis, "Hardware", "1000.00")

	d.advance(30 * 24 * time.Hour)
	d.interestRate(ctx, debt, "10")

	d.advance(24 * time.Hour)
	d.pay(ctx, debt, "1100.00", "Transfer")
}

func loadCreditReallocation(ctx context.Context, d *demo) {
	d.rewind(0, 10)
	marta := d.client(ctx, "27777888", "Marta Díaz", "555-0301", "Centro")
	overpaid := d.debt(ctx, marta, "Bread and milk", "300.00")

	d.advance(24 * time.Hour)
	d.debt(ctx, marta, "Butcher order", "500.00")

	d.advance(24 * time.Hour)
	d.pay(ctx, overpaid, "500.00", "Cash")
	// Left for the user: POST /api/clients/{id}/reallocate onto the open debt.
}

func loadMonthlyReport(ctx context.Context, d *demo) {
	d.rewind(0, 4)
	pedro := d.client(ctx, "20999000", "Pedro Sosa", "555-0401", "Las Flores")
	debt := d.debt(ctx, pedro, "Monthly tab", "1000.00")

	d.advance(time.Hour)
	d.pay(ctx, debt, "100.00", "Debit")
	d.advance(time.Hour)
	d.pay(ctx, debt, "200.00", "Debit (Banco X)")
	d.advance(time.Hour)
	d.pay(ctx, debt, "50.00", "Cash")
}

func loadCornerShop(ctx context.Context, d *demo) {
	d.rewind(2, 3)
	juan := d.client(ctx, "20111222", "Juan Pérez", "555-0101", "Centro")
	ana := d.client(ctx, "27333444", "Ana Gómez", "555-0102", "Barrio Norte")
	luis := d.client(ctx, "20555666", "Luis Romero", "555-0201", "Villa Sur")
	marta := d.client(ctx, "27777888", "Marta Díaz", "555-0301", "Centro")

	juanGroceries := d.debt(ctx, juan, "Groceries", "820.50")
	anaSupplies := d.debt(ctx, ana, "Cleaning supplies", "1250.00")
	d.advance(5 * 24 * time.Hour)
	luisHardware := d.debt(ctx, luis, "Hardware", "2300.00")
	martaBread := d.debt(ctx, marta, "Bread and milk", "180.00")

	d.advance(10 * 24 * time.Hour)
	d.pay(ctx, juanGroceries, "400.00", "Cash")
	d.pay(ctx, martaBread, "250.00", "Cash") // 70.00 credit
	d.pay(ctx, anaSupplies, "600.00", "Debit (Banco Nación)")

	d.nextMonth(4)
	d.interestRate(ctx, luisHardware, "5")
	d.pay(ctx, luisHardware, "1000.00", "Transfer")
	martaButcher := d.debt(ctx, marta, "Butcher order", "320.00")
	d.advance(3 * 24 * time.Hour)
	d.pay(ctx, anaSupplies, "650.00", "Debit")
	d.pay(ctx, juanGroceries, "420.50", "Cheque (#1234)")

	d.nextMonth(2)
	d.reallocate(ctx, marta, martaButcher)
	d.advance(2 * 24 * time.Hour)
	juanDrinks := d.debt(ctx, juan, "Drinks", "260.00")
	d.pay(ctx, juanDrinks, "100.00", "Cash")
}

// =============================================================================
// REPLAY HELPERS
// =============================================================================

// demo replays history through the ledger on its own clock. The first error
// sticks and turns every later step into a no-op.
type demo struct {
	now   time.Time
	loc   *time.Location
	clock *ledger.FixedClock

	directory *ledger.Directory
	debts     *ledger.DebtLedger
	payments  *ledger.PaymentProcessor
	credit    *ledger.CreditReallocator

	err error
}

func (h *Handler) newDemo() *demo {
	now := h.clock.Now().In(h.loc)
	clock := &ledger.FixedClock{At: now}
	return &demo{
		now:       now,
		loc:       h.loc,
		clock:     clock,
		directory: ledger.NewDirectory(h.store, clock),
		debts:     ledger.NewDebtLedger(h.store, clock),
		payments:  ledger.NewPaymentProcessor(h.store, clock),
		credit:    ledger.NewCreditReallocator(h.store, clock),
	}
}

// rewind moves the clock to day `day` of the month `monthsAgo` months back.
// The current month is clamped so the replay never passes the real now.
func (d *demo) rewind(monthsAgo, day int) {
	start := monthStart(d.now, d.loc).AddDate(0, -monthsAgo, day-1)
	if start.After(d.now) {
		start = monthStart(d.now, d.loc)
	}
	d.clock.Set(start)
}

// nextMonth jumps to day `day` of the following month.
func (d *demo) nextMonth(day int) {
	d.clock.Set(monthStart(d.clock.Now(), d.loc).AddDate(0, 1, day-1))
	d.clamp()
}

// advance moves the clock forward, never past the real now.
func (d *demo) advance(step time.Duration) {
	d.clock.Advance(step)
	d.clamp()
}

func (d *demo) clamp() {
	if d.clock.Now().After(d.now) {
		d.clock.Set(d.now)
	}
}

func (d *demo) client(ctx context.Context, code, name, phone, locality string) ledger.ClientID {
	if d.err != nil {
		return 0
	}
	id, err := d.directory.Register(ctx, ledger.NewClient{
		ExternalCode: code,
		Name:         name,
		Phone:        phone,
		Locality:     locality,
	})
	d.fail("register "+name, err)
	return id
}

func (d *demo) debt(ctx context.Context, clientID ledger.ClientID, description, amount string) ledger.DebtID {
	if d.err != nil {
		return 0
	}
	id, err := d.debts.OpenDebt(ctx, clientID, description, ledger.MustParseMoney(amount), nil)
	d.fail("open "+description, err)
	return id
}

func (d *demo) pay(ctx context.Context, debtID ledger.DebtID, amount, method string) {
	if d.err != nil {
		return
	}
	_, err := d.payments.RecordPayment(ctx, debtID, ledger.MustParseMoney(amount), method)
	d.fail(fmt.Sprintf("pay debt %d", debtID), err)
}

func (d *demo) interestRate(ctx context.Context, debtID ledger.DebtID, percent string) {
	if d.err != nil {
		return
	}
	_, err := d.debts.ApplyInterestRate(ctx, debtID, ledger.MustParseMoney(percent))
	d.fail(fmt.Sprintf("interest on debt %d", debtID), err)
}

func (d *demo) reallocate(ctx context.Context, clientID ledger.ClientID, target ledger.DebtID) {
	if d.err != nil {
		return
	}
	_, err := d.credit.Reallocate(ctx, clientID, target)
	d.fail(fmt.Sprintf("reallocate onto debt %d", target), err)
}

func (d *demo) fail(step string, err error) {
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", step, err)
	}
}

func monthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}
