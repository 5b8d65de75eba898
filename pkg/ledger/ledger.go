// Package ledger holds the installment lifecycle: recording payments,
// recomputing aggregate totals, and deriving effective statuses. The
// pure transforms live as package functions; Ledger wires them to a
// Storage implementation.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mplata/loantrack/pkg/calendar"
	"github.com/mplata/loantrack/pkg/models"
	"github.com/mplata/loantrack/pkg/schedule"
	"github.com/mplata/loantrack/pkg/store"
)

// ErrInstallmentNotFound is returned when a payment targets an
// installment number absent from the loan's schedule.
var ErrInstallmentNotFound = errors.New("installment not found")

// EffectiveStatus derives the display status of an installment from its
// recorded status and the current date. Payment is permanent and wins
// over any date comparison; otherwise the due date is compared date-only
// against today. Never stored: "late" is a function of the wall clock.
func EffectiveStatus(inst models.Installment, today time.Time) models.StatusTag {
	if inst.Status == models.InstallmentPaid {
		return models.StatusTagPaid
	}
	if calendar.Midnight(today).After(calendar.Midnight(inst.DueDate)) {
		return models.StatusTagLate
	}
	return models.StatusTagPending
}

// TotalPayable sums the total amount of every installment.
func TotalPayable(installments []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.TotalAmount)
	}
	return total
}

// TotalPaid sums the total amount of the paid installments.
func TotalPaid(installments []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		if inst.Status == models.InstallmentPaid {
			total = total.Add(inst.TotalAmount)
		}
	}
	return total
}

// ApplyPayment marks the numbered installment paid and recomputes the
// loan's aggregates. TotalPaid is recomputed from scratch rather than
// incremented, so the ledger self-heals any prior inconsistency. When
// every installment is paid the loan becomes completed; active and
// defaulted are otherwise left alone. Re-paying an already-paid
// installment is an idempotent overwrite of the payment date.
func ApplyPayment(loan *models.Loan, installmentNumber int, paymentTime time.Time) error {
	var target *models.Installment
	for i := range loan.Installments {
		if loan.Installments[i].Number == installmentNumber {
			target = &loan.Installments[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("installment %d: %w", installmentNumber, ErrInstallmentNotFound)
	}

	ts := paymentTime
	target.Status = models.InstallmentPaid
	target.PaymentDate = &ts

	loan.TotalPaid = TotalPaid(loan.Installments)

	allPaid := true
	for i := range loan.Installments {
		if loan.Installments[i].Status != models.InstallmentPaid {
			allPaid = false
			break
		}
	}
	if allPaid {
		loan.Status = models.LoanCompleted
	}
	return nil
}

// Ledger orchestrates loan and client operations over a Storage
// implementation. It computes whole new values and hands them to the
// store as a unit; it keeps no state of its own.
type Ledger struct {
	storage store.Storage
}

// New creates a Ledger backed by the given Storage implementation.
func New(s store.Storage) *Ledger {
	return &Ledger{storage: s}
}

// CreateLoan generates the schedule for the given terms, derives the
// aggregates, and persists the new loan.
func (l *Ledger) CreateLoan(clientID uuid.UUID, p schedule.Params) (*models.Loan, error) {
	if _, err := l.storage.GetClient(clientID); err != nil {
		return nil, fmt.Errorf("resolve client: %w", err)
	}

	installments, err := schedule.Generate(p)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	loan := &models.Loan{
		ID:           uuid.New(),
		ClientID:     clientID,
		Principal:    p.Principal,
		RateOrAmount: p.RateOrAmount,
		InterestMode: p.InterestMode,
		Frequency:    p.Frequency,
		Duration:     p.Duration,
		Method:       p.Method,
		StartDate:    calendar.Noon(p.StartDate),
		EndDate:      installments[len(installments)-1].DueDate,
		Installments: installments,
		Status:       models.LoanActive,
		TotalPayable: TotalPayable(installments),
		TotalPaid:    decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := l.storage.SaveLoan(loan); err != nil {
		return nil, fmt.Errorf("store loan: %w", err)
	}
	return loan, nil
}

// UpdateLoanTerms regenerates the loan's schedule from new terms,
// carrying forward paid state by position, and persists the result.
func (l *Ledger) UpdateLoanTerms(id uuid.UUID, p schedule.Params) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}

	installments, err := schedule.Regenerate(loan.Installments, p)
	if err != nil {
		return nil, err
	}

	loan.Principal = p.Principal
	loan.RateOrAmount = p.RateOrAmount
	loan.InterestMode = p.InterestMode
	loan.Frequency = p.Frequency
	loan.Duration = p.Duration
	loan.Method = p.Method
	loan.StartDate = calendar.Noon(p.StartDate)
	loan.EndDate = installments[len(installments)-1].DueDate
	loan.Installments = installments
	loan.TotalPayable = TotalPayable(installments)
	loan.TotalPaid = TotalPaid(installments)
	loan.UpdatedAt = time.Now()

	if err := l.storage.SaveLoan(loan); err != nil {
		return nil, fmt.Errorf("store loan: %w", err)
	}
	return loan, nil
}

// RecordPayment applies a payment to the numbered installment of the
// loan and persists the updated loan.
func (l *Ledger) RecordPayment(loanID uuid.UUID, installmentNumber int, paymentTime time.Time) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	if err := ApplyPayment(loan, installmentNumber, paymentTime); err != nil {
		return nil, err
	}

	loan.UpdatedAt = time.Now()
	if err := l.storage.SaveLoan(loan); err != nil {
		return nil, fmt.Errorf("store loan: %w", err)
	}
	return loan, nil
}

// MarkDefaulted flags a loan as defaulted. Completed loans are left
// untouched.
func (l *Ledger) MarkDefaulted(loanID uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == models.LoanCompleted {
		return loan, nil
	}
	loan.Status = models.LoanDefaulted
	loan.UpdatedAt = time.Now()
	if err := l.storage.SaveLoan(loan); err != nil {
		return nil, fmt.Errorf("store loan: %w", err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by its id.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves every loan.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// GetLoansForClient retrieves the loans belonging to a client.
func (l *Ledger) GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error) {
	return l.storage.GetLoansForClient(clientID)
}

// DeleteLoan removes a loan and its schedule.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// CreateClient persists a new client record.
func (l *Ledger) CreateClient(c *models.Client) (*models.Client, error) {
	now := time.Now()
	c.ID = uuid.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := l.storage.SaveClient(c); err != nil {
		return nil, fmt.Errorf("store client: %w", err)
	}
	return c, nil
}

// UpdateClient persists changes to an existing client.
func (l *Ledger) UpdateClient(c *models.Client) error {
	if _, err := l.storage.GetClient(c.ID); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	return l.storage.SaveClient(c)
}

// GetClient retrieves a client by id.
func (l *Ledger) GetClient(id uuid.UUID) (*models.Client, error) {
	return l.storage.GetClient(id)
}

// GetAllClients retrieves every client.
func (l *Ledger) GetAllClients() ([]*models.Client, error) {
	return l.storage.GetAllClients()
}

// DeleteClient removes a client and all of their loans.
func (l *Ledger) DeleteClient(id uuid.UUID) error {
	loans, err := l.storage.GetLoansForClient(id)
	if err != nil {
		return err
	}
	for _, loan := range loans {
		if err := l.storage.DeleteLoan(loan.ID); err != nil {
			return err
		}
	}
	return l.storage.DeleteClient(id)
}
