/*
handlers.go - HTTP API handlers for the tab ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger components.

ENDPOINTS:
  Clients:
    GET    /api/clients?q=              Search clients with balances
    POST   /api/clients                 Register client
    GET    /api/clients/{id}            Client with balance and credit
    DELETE /api/clients/{id}            Remove client, debts and payments
    GET    /api/clients/{id}/debts      Client's debts, oldest first
    POST   /api/clients/{id}/debts      Open a debt
    POST   /api/clients/{id}/reallocate Move surplus credit onto a debt

  Debts:
    GET    /api/debts/{id}              Debt details
    DELETE /api/debts/{id}              Remove debt and its payments
    GET    /api/debts/{id}/payments     Payment history, most recent first
    POST   /api/debts/{id}/payments     Record payment (optionally with interest)
    POST   /api/debts/{id}/interest     Add interest (amount or percent)

  Reports:
    GET    /api/reports/months/{month}  Revenue, method breakdown, credit moved
    GET    /api/reports/revenue         Revenue per month, most recent first
    GET    /api/reports/top-debtors     Ranking by amount owed (?limit=)

  Scenarios:
    GET    /api/scenarios               List demo datasets
    POST   /api/scenarios/load          Load a demo dataset
    POST   /api/scenarios/reset         Empty the store

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: TxStore plus Reset, shared by every component
  - Directory, DebtLedger, PaymentProcessor, CreditReallocator
  - reporting.Engine for the dashboards
  - validator, metrics and logger

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (validator tags)
  3. Call the ledger
  4. Serialize response
  5. Map ledger errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Client or debt not found
  - 409: Conflict (duplicate client, already paid, no credit)
  - 500: Storage failures

SECURITY NOTE:
  No authentication or authorization. The server is meant for a single shop
  on a trusted network.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tab-ledger/ledger"
	"github.com/warp/tab-ledger/observability"
	"github.com/warp/tab-ledger/reporting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs from persistence: the ledger's transactional
// store plus a way to wipe it for demos.
type Store interface {
	ledger.TxStore
	Reset(ctx context.Context) error
}

// Options configures a Handler. Zero values fall back to defaults.
type Options struct {
	Clock         ledger.Clock
	Location      *time.Location
	DustThreshold *decimal.Decimal
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store     Store
	clock     ledger.Clock
	loc       *time.Location
	directory *ledger.Directory
	debts     *ledger.DebtLedger
	payments  *ledger.PaymentProcessor
	credit    *ledger.CreditReallocator
	reports   *reporting.Engine

	validate *validator.Validate
	metrics  *observability.Metrics
	logger   *zap.Logger

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler over the given store.
func NewHandler(store Store, opts Options) *Handler {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = ledger.SystemClock{Location: loc}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reportOpts := []reporting.Option{reporting.WithLocation(loc)}
	if opts.DustThreshold != nil {
		reportOpts = append(reportOpts, reporting.WithDustThreshold(*opts.DustThreshold))
	}

	return &Handler{
		store:     store,
		clock:     clock,
		loc:       loc,
		directory: ledger.NewDirectory(store, clock),
		debts:     ledger.NewDebtLedger(store, clock),
		payments:  ledger.NewPaymentProcessor(store, clock),
		credit:    ledger.NewCreditReallocator(store, clock),
		reports:   reporting.NewEngine(store, reportOpts...),
		validate:  validator.New(),
		metrics:   metrics,
		logger:    logger,
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns clients matching ?q= with what each owes.
// GET /api/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	balances, err := h.debts.Balances(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeLedgerError(w, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toClientDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient registers a client.
// POST /api/clients
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.directory.Register(r.Context(), ledger.NewClient{
		ExternalCode: req.ExternalCode,
		Name:         req.Name,
		Phone:        req.Phone,
		Locality:     req.Locality,
	})
	h.metrics.RecordOperation("register_client", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to register client", err)
		return
	}

	h.writeClient(w, r, id, http.StatusCreated)
}

// GetClient returns one client with balance and credit.
// GET /api/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	h.writeClient(w, r, id, http.StatusOK)
}

// DeleteClient removes a client with all its debts and payments.
// DELETE /api/clients/{id}
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}

	err := h.directory.Delete(r.Context(), id)
	h.metrics.RecordOperation("delete_client", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeClient(w http.ResponseWriter, r *http.Request, id ledger.ClientID, status int) {
	ctx := r.Context()
	c, err := h.directory.Get(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get client", err)
		return
	}
	owed, err := h.debts.ClientBalance(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get client balance", err)
		return
	}
	credit, err := h.debts.ClientCreditAvailable(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get client credit", err)
		return
	}
	writeJSON(w, status, toClientDTO(ledger.ClientBalance{Client: c, Owed: owed, Credit: credit}))
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

// ListDebts returns a client's debts, oldest first.
// GET /api/clients/{id}/debts
func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}

	debts, err := h.debts.Debts(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to list debts", err)
		return
	}

	dtos := make([]DebtDTO, len(debts))
	for i, d := range debts {
		dtos[i] = toDebtDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenDebt puts a new debt on the client's tab.
// POST /api/clients/{id}/debts
func (h *Handler) OpenDebt(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	var req OpenDebtRequest
	if !h.decode(w, r, &req) {
		return
	}

	var createdAt *time.Time
	if req.CreatedAt != "" {
		t, err := h.parseDate(req.CreatedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid created_at", err)
			return
		}
		createdAt = &t
	}

	ctx := r.Context()
	id, err := h.debts.OpenDebt(ctx, clientID, strings.TrimSpace(req.Description), req.Amount, createdAt)
	h.metrics.RecordOperation("open_debt", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to open debt", err)
		return
	}
	h.metrics.AddAmount("debt", req.Amount.InexactFloat64())

	h.writeDebt(w, r, id, http.StatusCreated)
}

// GetDebt returns one debt.
// GET /api/debts/{id}
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := debtIDParam(w, r)
	if !ok {
		return
	}
	h.writeDebt(w, r, id, http.StatusOK)
}

// DeleteDebt removes a debt and its payments.
// DELETE /api/debts/{id}
func (h *Handler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := debtIDParam(w, r)
	if !ok {
		return
	}

	err := h.debts.DeleteDebt(r.Context(), id)
	h.metrics.RecordOperation("delete_debt", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to delete debt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyInterest grows a debt by a fixed amount or by a percentage of what
// is still owed.
// POST /api/debts/{id}/interest
func (h *Handler) ApplyInterest(w http.ResponseWriter, r *http.Request) {
	id, ok := debtIDParam(w, r)
	if !ok {
		return
	}
	var req InterestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount != nil && req.Percent != nil {
		writeError(w, http.StatusBadRequest, "Send either amount or percent, not both", nil)
		return
	}

	ctx := r.Context()
	var (
		charged decimal.Decimal
		err     error
	)
	if req.Percent != nil {
		charged, err = h.debts.ApplyInterestRate(ctx, id, *req.Percent)
	} else {
		charged, err = *req.Amount, h.debts.ApplyInterest(ctx, id, *req.Amount)
	}
	h.metrics.RecordOperation("apply_interest", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to apply interest", err)
		return
	}
	h.metrics.AddAmount("interest", charged.InexactFloat64())

	d, err := h.debts.Debt(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get debt", err)
		return
	}
	writeJSON(w, http.StatusOK, InterestDTO{Charged: money(charged), Debt: toDebtDTO(d)})
}

func (h *Handler) writeDebt(w http.ResponseWriter, r *http.Request, id ledger.DebtID, status int) {
	d, err := h.debts.Debt(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get debt", err)
		return
	}
	writeJSON(w, status, toDebtDTO(d))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns a debt's payment history, most recent first.
// GET /api/debts/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := debtIDParam(w, r)
	if !ok {
		return
	}

	payments, err := h.payments.History(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get payment history", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment applies a payment to a debt. With "interest" set, the
// interest and the payment are recorded together.
// POST /api/debts/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := debtIDParam(w, r)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	var (
		paymentID ledger.PaymentID
		err       error
	)
	if req.Interest != nil {
		paymentID, err = h.payments.SettleWithInterest(ctx, id, *req.Interest, req.Amount, req.Method)
	} else {
		paymentID, err = h.payments.RecordPayment(ctx, id, req.Amount, req.Method)
	}
	h.metrics.RecordOperation("record_payment", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to record payment", err)
		return
	}
	h.metrics.AddAmount("payment", req.Amount.InexactFloat64())
	if req.Interest != nil {
		h.metrics.AddAmount("interest", req.Interest.InexactFloat64())
	}

	d, err := h.debts.Debt(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get debt", err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResultDTO{PaymentID: int64(paymentID), Debt: toDebtDTO(d)})
}

// =============================================================================
// CREDIT HANDLERS
// =============================================================================

// Reallocate moves the client's surplus credit onto one of its open debts.
// POST /api/clients/{id}/reallocate
func (h *Handler) Reallocate(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	var req ReallocateRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.credit.Reallocate(r.Context(), clientID, ledger.DebtID(req.TargetDebtID))
	h.metrics.RecordOperation("reallocate_credit", err)
	if err != nil {
		h.writeLedgerError(w, "Failed to reallocate credit", err)
		return
	}
	h.metrics.AddAmount("credit_transfer", result.Applied.InexactFloat64())

	writeJSON(w, http.StatusOK, toReallocationDTO(result))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetMonthReport returns the month's revenue, method breakdown and credit
// moved. {month} is YYYY-MM.
// GET /api/reports/months/{month}
func (h *Handler) GetMonthReport(w http.ResponseWriter, r *http.Request) {
	ym, err := ledger.ParseYearMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	summary, err := h.reports.MonthSummary(r.Context(), ym)
	if err != nil {
		h.writeLedgerError(w, "Failed to build month report", err)
		return
	}

	writeJSON(w, http.StatusOK, MonthSummaryDTO{
		Month:             summary.Month.String(),
		Revenue:           money(summary.Revenue),
		CreditTransferred: money(summary.CreditTransferred),
		Payments:          summary.Payments,
		Methods:           toMethodShareDTOs(summary.Methods),
	})
}

// GetRevenueHistory returns revenue per month, most recent first.
// GET /api/reports/revenue
func (h *Handler) GetRevenueHistory(w http.ResponseWriter, r *http.Request) {
	totals, err := h.reports.RevenueByMonth(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to build revenue history", err)
		return
	}

	dtos := make([]MonthlyTotalDTO, len(totals))
	for i, t := range totals {
		dtos[i] = MonthlyTotalDTO{Month: t.Month.String(), Amount: money(t.Amount)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTopDebtors ranks clients by what they owe. ?limit= defaults to 10;
// 0 returns everyone.
// GET /api/reports/top-debtors
func (h *Handler) GetTopDebtors(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	debtors, err := h.reports.TopDebtors(r.Context(), limit)
	if err != nil {
		h.writeLedgerError(w, "Failed to rank debtors", err)
		return
	}

	dtos := make([]DebtorDTO, len(debtors))
	for i, d := range debtors {
		dtos[i] = DebtorDTO{ClientID: int64(d.ClientID), Name: d.Name, TotalOwed: money(d.TotalOwed)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag())
	}
	return errors.New(strings.Join(parts, "; "))
}

// parseDate accepts RFC3339 or a bare date in the handler's location.
func (h *Handler) parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, h.loc)
}

func clientIDParam(w http.ResponseWriter, r *http.Request) (ledger.ClientID, bool) {
	id, ok := idParam(w, r)
	return ledger.ClientID(id), ok
}

func debtIDParam(w http.ResponseWriter, r *http.Request) (ledger.DebtID, bool) {
	id, ok := idParam(w, r)
	return ledger.DebtID(id), ok
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// writeLedgerError maps ledger errors to HTTP status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
