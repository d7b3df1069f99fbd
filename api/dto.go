/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Responses carry money as strings rounded to cents ("1000.50").
  Requests accept either a JSON string or a JSON number; both are parsed as
  exact decimals, never as float64.

TIME:
  Timestamps are RFC3339. Debt creation dates may be sent as a bare
  "2006-01-02", read in the server's time zone.

VALIDATION:
  Request shape (required fields, lengths, formats) is checked with
  go-playground/validator tags. Money rules (positive, non-zero after
  rounding) stay in the ledger so every caller gets the same answer.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tab-ledger/ledger"
	"github.com/warp/tab-ledger/reporting"
)

// =============================================================================
// CLIENTS
// =============================================================================

// ClientDTO represents a client with its balance in API responses.
type ClientDTO struct {
	ID           int64  `json:"id"`
	ExternalCode string `json:"external_code"`
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Locality     string `json:"locality,omitempty"`
	CreatedAt    string `json:"created_at"`
	Owed         string `json:"owed"`
	Credit       string `json:"credit"`
}

// CreateClientRequest is the request to register a client.
type CreateClientRequest struct {
	ExternalCode string `json:"external_code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"omitempty,max=40"`
	Locality     string `json:"locality" validate:"omitempty,max=80"`
}

// =============================================================================
// DEBTS
// =============================================================================

// DebtDTO represents one debt in API responses.
type DebtDTO struct {
	ID                int64   `json:"id"`
	ClientID          int64   `json:"client_id"`
	Description       string  `json:"description"`
	OriginalAmount    string  `json:"original_amount"`
	PaidAmount        string  `json:"paid_amount"`
	Remaining         string  `json:"remaining"`
	Credit            string  `json:"credit"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at"`
	LastPaymentAt     *string `json:"last_payment_at,omitempty"`
	LastPaymentMethod string  `json:"last_payment_method,omitempty"`
}

// OpenDebtRequest is the request to put a new debt on a client's tab.
type OpenDebtRequest struct {
	Description string          `json:"description" validate:"max=200"`
	Amount      decimal.Decimal `json:"amount"`
	// CreatedAt backdates the debt: "2006-01-02" or RFC3339. Empty means now.
	CreatedAt string `json:"created_at"`
}

// InterestRequest adds interest either as a fixed amount or as a percentage
// of the remaining balance. Exactly one must be set.
type InterestRequest struct {
	Amount  *decimal.Decimal `json:"amount" validate:"required_without=Percent"`
	Percent *decimal.Decimal `json:"percent" validate:"required_without=Amount"`
}

// InterestDTO reports the interest charged and the debt afterwards.
type InterestDTO struct {
	Charged string  `json:"charged"`
	Debt    DebtDTO `json:"debt"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents one payment in API responses.
type PaymentDTO struct {
	ID             int64  `json:"id"`
	DebtID         int64  `json:"debt_id"`
	Amount         string `json:"amount"`
	PaidAt         string `json:"paid_at"`
	Method         string `json:"method"`
	CreditTransfer bool   `json:"credit_transfer"`
}

// RecordPaymentRequest records a payment. When Interest is set, the interest
// is applied first and both land together.
type RecordPaymentRequest struct {
	Amount   decimal.Decimal  `json:"amount"`
	Method   string           `json:"method" validate:"omitempty,max=60"`
	Interest *decimal.Decimal `json:"interest"`
}

// PaymentResultDTO is returned after a payment is recorded.
type PaymentResultDTO struct {
	PaymentID int64   `json:"payment_id"`
	Debt      DebtDTO `json:"debt"`
}

// =============================================================================
// CREDIT
// =============================================================================

// ReallocateRequest names the debt that should receive the client's credit.
type ReallocateRequest struct {
	TargetDebtID int64 `json:"target_debt_id" validate:"required,gt=0"`
}

// CreditSourceDTO is one debt that gave up surplus.
type CreditSourceDTO struct {
	DebtID int64  `json:"debt_id"`
	Amount string `json:"amount"`
}

// ReallocationDTO is the outcome of a credit reallocation.
type ReallocationDTO struct {
	PaymentID       int64             `json:"payment_id"`
	Applied         string            `json:"applied"`
	RemainingCredit string            `json:"remaining_credit"`
	Sources         []CreditSourceDTO `json:"sources"`
}

// =============================================================================
// REPORTS
// =============================================================================

// MethodShareDTO is one bucket of the method breakdown.
type MethodShareDTO struct {
	Method     string `json:"method"`
	Amount     string `json:"amount"`
	Percentage string `json:"percentage"`
}

// MonthSummaryDTO is the month dashboard.
type MonthSummaryDTO struct {
	Month             string           `json:"month"`
	Revenue           string           `json:"revenue"`
	CreditTransferred string           `json:"credit_transferred"`
	Payments          int              `json:"payments"`
	Methods           []MethodShareDTO `json:"methods"`
}

// MonthlyTotalDTO is one month of revenue history.
type MonthlyTotalDTO struct {
	Month  string `json:"month"`
	Amount string `json:"amount"`
}

// DebtorDTO is one row of the top-debtor ranking.
type DebtorDTO struct {
	ClientID  int64  `json:"client_id"`
	Name      string `json:"name"`
	TotalOwed string `json:"total_owed"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the dataset to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return ledger.RoundCents(d).StringFixed(ledger.CentPlaces)
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

func toClientDTO(b ledger.ClientBalance) ClientDTO {
	return ClientDTO{
		ID:           int64(b.Client.ID),
		ExternalCode: b.Client.ExternalCode,
		Name:         b.Client.Name,
		Phone:        b.Client.Phone,
		Locality:     b.Client.Locality,
		CreatedAt:    timestamp(b.Client.CreatedAt),
		Owed:         money(b.Owed),
		Credit:       money(b.Credit),
	}
}

func toDebtDTO(d ledger.Debt) DebtDTO {
	dto := DebtDTO{
		ID:                int64(d.ID),
		ClientID:          int64(d.ClientID),
		Description:       d.Description,
		OriginalAmount:    money(d.OriginalAmount),
		PaidAmount:        money(d.PaidAmount),
		Remaining:         money(d.Remaining()),
		Credit:            money(d.Surplus()),
		Status:            string(ledger.DeriveStatus(d.OriginalAmount, d.PaidAmount)),
		CreatedAt:         timestamp(d.CreatedAt),
		LastPaymentMethod: d.LastPaymentMethod,
	}
	if d.LastPaymentAt != nil {
		s := timestamp(*d.LastPaymentAt)
		dto.LastPaymentAt = &s
	}
	return dto
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             int64(p.ID),
		DebtID:         int64(p.DebtID),
		Amount:         money(p.Amount),
		PaidAt:         timestamp(p.PaidAt),
		Method:         p.Method,
		CreditTransfer: p.IsCreditTransfer(),
	}
}

func toReallocationDTO(r ledger.Reallocation) ReallocationDTO {
	sources := make([]CreditSourceDTO, len(r.Sources))
	for i, s := range r.Sources {
		sources[i] = CreditSourceDTO{DebtID: int64(s.DebtID), Amount: money(s.Amount)}
	}
	return ReallocationDTO{
		PaymentID:       int64(r.PaymentID),
		Applied:         money(r.Applied),
		RemainingCredit: money(r.RemainingCredit),
		Sources:         sources,
	}
}

func toMethodShareDTOs(shares []reporting.MethodShare) []MethodShareDTO {
	dtos := make([]MethodShareDTO, len(shares))
	for i, s := range shares {
		dtos[i] = MethodShareDTO{
			Method:     s.Method,
			Amount:     money(s.Amount),
			Percentage: s.Percentage.StringFixed(2),
		}
	}
	return dtos
}
