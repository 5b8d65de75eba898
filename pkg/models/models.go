package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency is the spacing between consecutive installments.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// InterestMode determines how a loan's rate value is interpreted:
// as a percentage of the principal or as a fixed total interest amount.
type InterestMode string

const (
	InterestPercentage InterestMode = "percentage"
	InterestFixed      InterestMode = "fixed_amount"
)

func (m InterestMode) Valid() bool {
	return m == InterestPercentage || m == InterestFixed
}

// AmortizationMethod selects the schedule algorithm.
type AmortizationMethod string

const (
	MethodSimple AmortizationMethod = "simple"
	MethodFrench AmortizationMethod = "french"
)

func (m AmortizationMethod) Valid() bool {
	return m == MethodSimple || m == MethodFrench
}

// InstallmentStatus is the recorded state of an installment. "Late" is
// never stored; it is derived from the due date on read (see StatusTag).
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

// StatusTag is the effective display status of an installment, derived
// from its recorded status and the current date.
type StatusTag string

const (
	StatusTagPending StatusTag = "pending"
	StatusTagPaid    StatusTag = "paid"
	StatusTagLate    StatusTag = "late"
)

// LoanStatus is the overall state of a loan.
type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanDefaulted LoanStatus = "defaulted"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanCompleted, LoanDefaulted:
		return true
	}
	return false
}

// Label returns the human-readable form of a status tag. Logic compares
// the typed constants, never these strings.
func (t StatusTag) Label() string {
	switch t {
	case StatusTagPaid:
		return "Paid"
	case StatusTagLate:
		return "Late"
	default:
		return "Pending"
	}
}

// Label returns the human-readable form of a loan status.
func (s LoanStatus) Label() string {
	switch s {
	case LoanCompleted:
		return "Completed"
	case LoanDefaulted:
		return "Defaulted"
	default:
		return "Active"
	}
}

// Installment is one scheduled payment obligation within a loan.
// TotalAmount is always CapitalPortion + InterestPortion.
type Installment struct {
	Number          int               `json:"number"`
	DueDate         time.Time         `json:"due_date"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	CapitalPortion  decimal.Decimal   `json:"capital_portion"`
	InterestPortion decimal.Decimal   `json:"interest_portion"`
	Status          InstallmentStatus `json:"status"`
	PaymentDate     *time.Time        `json:"payment_date,omitempty"`
}

// Loan is a tracked loan with its full installment schedule. The
// installment list is owned exclusively by the loan and is replaced
// wholesale whenever the loan's terms are edited. TotalPayable and
// TotalPaid are always recomputed from the installment list.
type Loan struct {
	ID           uuid.UUID          `json:"id"`
	ClientID     uuid.UUID          `json:"client_id"`
	Principal    decimal.Decimal    `json:"principal"`
	RateOrAmount decimal.Decimal    `json:"rate_or_amount"`
	InterestMode InterestMode       `json:"interest_mode"`
	Frequency    Frequency          `json:"frequency"`
	Duration     int                `json:"duration"`
	Method       AmortizationMethod `json:"method"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      time.Time          `json:"end_date"`
	Installments []Installment      `json:"installments"`
	Status       LoanStatus         `json:"status"`
	TotalPayable decimal.Decimal    `json:"total_payable"`
	TotalPaid    decimal.Decimal    `json:"total_paid"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Client is a borrower record. Loans reference clients by id.
type Client struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RateOverrides maps a 1-based installment number to the rate (or fixed
// amount) that becomes active from that installment onward. An empty map
// means a single fixed rate for the life of the loan.
type RateOverrides map[int]decimal.Decimal
