package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mplata/loantrack/pkg/calendar"
	"github.com/mplata/loantrack/pkg/models"
	"github.com/mplata/loantrack/pkg/schedule"
	"github.com/mplata/loantrack/pkg/store"
)

// MockStore is a simple in-memory implementation of the Storage
// interface for testing.
type MockStore struct {
	clients map[uuid.UUID]*models.Client
	loans   map[uuid.UUID]*models.Loan
}

func NewMockStore() *MockStore {
	return &MockStore{
		clients: make(map[uuid.UUID]*models.Client),
		loans:   make(map[uuid.UUID]*models.Loan),
	}
}

func (m *MockStore) SaveClient(c *models.Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *MockStore) GetClient(id uuid.UUID) (*models.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (m *MockStore) DeleteClient(id uuid.UUID) error {
	if _, ok := m.clients[id]; !ok {
		return fmt.Errorf("client %s: %w", id, store.ErrNotFound)
	}
	delete(m.clients, id)
	return nil
}

func (m *MockStore) GetAllClients() ([]*models.Client, error) {
	clients := []*models.Client{}
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	return clients, nil
}

func (m *MockStore) SaveLoan(l *models.Loan) error {
	m.loans[l.ID] = l
	return nil
}

func (m *MockStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, store.ErrNotFound)
	}
	return l, nil
}

func (m *MockStore) DeleteLoan(id uuid.UUID) error {
	if _, ok := m.loans[id]; !ok {
		return fmt.Errorf("loan %s: %w", id, store.ErrNotFound)
	}
	delete(m.loans, id)
	return nil
}

func (m *MockStore) GetAllLoans() ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, l := range m.loans {
		loans = append(loans, l)
	}
	return loans, nil
}

func (m *MockStore) GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, l := range m.loans {
		if l.ClientID == clientID {
			loans = append(loans, l)
		}
	}
	return loans, nil
}

func (m *MockStore) Close() error {
	return nil
}

func testParams() schedule.Params {
	return schedule.Params{
		Principal:    decimal.NewFromInt(1200),
		RateOrAmount: decimal.NewFromInt(120),
		InterestMode: models.InterestFixed,
		Frequency:    models.FrequencyMonthly,
		Duration:     12,
		Method:       models.MethodSimple,
		StartDate:    calendar.MustParseDate("2024-01-01"),
	}
}

func newTestLoan(t *testing.T, l *Ledger, st *MockStore) *models.Loan {
	t.Helper()
	client, err := l.CreateClient(&models.Client{Name: "Ana Torres"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	loan, err := l.CreateLoan(client.ID, testParams())
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	return loan
}

func TestEffectiveStatus(t *testing.T) {
	due := calendar.MustParseDate("2024-03-01")
	inst := models.Installment{Number: 1, DueDate: due, Status: models.InstallmentPending}

	if got := EffectiveStatus(inst, calendar.MustParseDate("2024-02-15")); got != models.StatusTagPending {
		t.Errorf("Before due date: expected pending, got %s", got)
	}
	// Due day itself is not late yet.
	if got := EffectiveStatus(inst, calendar.MustParseDate("2024-03-01")); got != models.StatusTagPending {
		t.Errorf("On due date: expected pending, got %s", got)
	}
	if got := EffectiveStatus(inst, calendar.MustParseDate("2024-03-02")); got != models.StatusTagLate {
		t.Errorf("After due date: expected late, got %s", got)
	}

	// Payment is permanent and overrides the date comparison.
	inst.Status = models.InstallmentPaid
	if got := EffectiveStatus(inst, calendar.MustParseDate("2030-01-01")); got != models.StatusTagPaid {
		t.Errorf("Paid installment: expected paid, got %s", got)
	}
}

func TestApplyPayment(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	paidAt := calendar.MustParseDate("2024-02-01")
	if err := ApplyPayment(loan, 3, paidAt); err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}

	for _, inst := range loan.Installments {
		if inst.Number == 3 {
			if inst.Status != models.InstallmentPaid {
				t.Errorf("Expected installment 3 paid, got %s", inst.Status)
			}
			if inst.PaymentDate == nil || !inst.PaymentDate.Equal(paidAt) {
				t.Errorf("Expected payment date %s, got %v", paidAt, inst.PaymentDate)
			}
			continue
		}
		if inst.Status != models.InstallmentPending {
			t.Errorf("Installment %d should be untouched, got %s", inst.Number, inst.Status)
		}
	}

	// TotalPaid is recomputed as the exact sum of paid amounts.
	if !loan.TotalPaid.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected total paid 110, got %s", loan.TotalPaid)
	}
	if !loan.TotalPayable.Equal(decimal.NewFromInt(1320)) {
		t.Errorf("TotalPayable must not change, got %s", loan.TotalPayable)
	}
	if loan.Status != models.LoanActive {
		t.Errorf("Expected loan still active, got %s", loan.Status)
	}
}

func TestApplyPayment_UnknownInstallment(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	err := ApplyPayment(loan, 99, time.Now())
	if !errors.Is(err, ErrInstallmentNotFound) {
		t.Fatalf("Expected ErrInstallmentNotFound, got %v", err)
	}
}

func TestApplyPayment_RepayOverwritesPaymentDate(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	first := calendar.MustParseDate("2024-02-01")
	second := calendar.MustParseDate("2024-02-20")
	if err := ApplyPayment(loan, 1, first); err != nil {
		t.Fatal(err)
	}
	if err := ApplyPayment(loan, 1, second); err != nil {
		t.Fatal(err)
	}

	inst := loan.Installments[0]
	if inst.PaymentDate == nil || !inst.PaymentDate.Equal(second) {
		t.Errorf("Expected overwritten payment date %s, got %v", second, inst.PaymentDate)
	}
	if !loan.TotalPaid.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Re-payment must not double count: got %s", loan.TotalPaid)
	}
}

func TestApplyPayment_LastInstallmentCompletesLoan(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	now := time.Now()
	for n := 1; n <= 11; n++ {
		if err := ApplyPayment(loan, n, now); err != nil {
			t.Fatal(err)
		}
	}
	if loan.Status != models.LoanActive {
		t.Fatalf("Expected loan active before the last payment, got %s", loan.Status)
	}

	if err := ApplyPayment(loan, 12, now); err != nil {
		t.Fatal(err)
	}
	if loan.Status != models.LoanCompleted {
		t.Errorf("Expected loan completed, got %s", loan.Status)
	}
	if !loan.TotalPaid.Equal(loan.TotalPayable) {
		t.Errorf("Expected total paid %s == total payable %s", loan.TotalPaid, loan.TotalPayable)
	}
}

func TestCreateLoan(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	if len(loan.Installments) != 12 {
		t.Fatalf("Expected 12 installments, got %d", len(loan.Installments))
	}
	if !loan.TotalPayable.Equal(decimal.NewFromInt(1320)) {
		t.Errorf("Expected total payable 1320, got %s", loan.TotalPayable)
	}
	if !loan.TotalPaid.IsZero() {
		t.Errorf("Expected total paid 0, got %s", loan.TotalPaid)
	}
	if got := calendar.ToDateString(loan.EndDate); got != "2025-01-01" {
		t.Errorf("Expected end date 2025-01-01, got %s", got)
	}
	if loan.Status != models.LoanActive {
		t.Errorf("Expected new loan active, got %s", loan.Status)
	}

	stored, err := st.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Loan was not persisted: %v", err)
	}
	if stored.ID != loan.ID {
		t.Errorf("Stored loan id mismatch")
	}
}

func TestCreateLoan_UnknownClient(t *testing.T) {
	st := NewMockStore()
	l := New(st)

	_, err := l.CreateLoan(uuid.New(), testParams())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for unknown client, got %v", err)
	}
}

func TestUpdateLoanTerms_RegeneratesAndRecomputes(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	paidAt := calendar.MustParseDate("2024-02-01")
	if _, err := l.RecordPayment(loan.ID, 1, paidAt); err != nil {
		t.Fatal(err)
	}

	p := testParams()
	p.RateOrAmount = decimal.NewFromInt(240)
	updated, err := l.UpdateLoanTerms(loan.ID, p)
	if err != nil {
		t.Fatalf("UpdateLoanTerms failed: %v", err)
	}

	// New terms: interest 20, total 120 per installment.
	if !updated.TotalPayable.Equal(decimal.NewFromInt(1440)) {
		t.Errorf("Expected total payable 1440, got %s", updated.TotalPayable)
	}
	first := updated.Installments[0]
	if first.Status != models.InstallmentPaid {
		t.Errorf("Paid state must carry forward by position, got %s", first.Status)
	}
	if first.PaymentDate == nil || !first.PaymentDate.Equal(paidAt) {
		t.Errorf("Payment date must survive regeneration")
	}
	// The paid installment adopts the new amount (rewrite of history).
	if !updated.TotalPaid.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Expected total paid 120 under new terms, got %s", updated.TotalPaid)
	}
}

func TestMarkDefaulted(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	updated, err := l.MarkDefaulted(loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.LoanDefaulted {
		t.Errorf("Expected defaulted, got %s", updated.Status)
	}
}

func TestDeleteClient_CascadesLoans(t *testing.T) {
	st := NewMockStore()
	l := New(st)
	loan := newTestLoan(t, l, st)

	if err := l.DeleteClient(loan.ClientID); err != nil {
		t.Fatalf("DeleteClient failed: %v", err)
	}
	if _, err := st.GetLoan(loan.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected loan removed with its client, got %v", err)
	}
}
