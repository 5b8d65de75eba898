// Package backup serializes the full portfolio to a JSON snapshot and
// restores it. Import validates every record once at this boundary and
// produces either a well-typed record or a malformed-record entry in the
// report; nothing downstream re-sanitizes fields on read.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mplata/loantrack/pkg/calendar"
	"github.com/mplata/loantrack/pkg/ledger"
	"github.com/mplata/loantrack/pkg/models"
	"github.com/mplata/loantrack/pkg/store"
)

// Snapshot is the serialized portfolio. Dates are canonical YYYY-MM-DD
// strings; every loan embeds its installment array in full.
type Snapshot struct {
	ExportedAt string         `json:"exported_at"`
	Clients    []ClientRecord `json:"clients"`
	Loans      []LoanRecord   `json:"loans"`
}

// ClientRecord is the wire form of a client.
type ClientRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Notes    string `json:"notes"`
}

// LoanRecord is the wire form of a loan.
type LoanRecord struct {
	ID           string              `json:"id"`
	ClientID     string              `json:"client_id"`
	Principal    decimal.Decimal     `json:"principal"`
	RateOrAmount decimal.Decimal     `json:"rate_or_amount"`
	InterestMode string              `json:"interest_mode"`
	Frequency    string              `json:"frequency"`
	Duration     int                 `json:"duration"`
	Method       string              `json:"method"`
	StartDate    string              `json:"start_date"`
	EndDate      string              `json:"end_date"`
	Status       string              `json:"status"`
	Installments []InstallmentRecord `json:"installments"`
}

// InstallmentRecord is the wire form of an installment.
type InstallmentRecord struct {
	Number          int             `json:"number"`
	DueDate         string          `json:"due_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CapitalPortion  decimal.Decimal `json:"capital_portion"`
	InterestPortion decimal.Decimal `json:"interest_portion"`
	Status          string          `json:"status"`
	PaymentDate     string          `json:"payment_date,omitempty"`
}

// MalformedRecord describes one record rejected during import.
type MalformedRecord struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ImportReport summarizes an import run.
type ImportReport struct {
	ClientsImported int               `json:"clients_imported"`
	LoansImported   int               `json:"loans_imported"`
	Malformed       []MalformedRecord `json:"malformed,omitempty"`
}

// Export writes a snapshot of every client and loan in the store.
func Export(st store.Storage, w io.Writer) error {
	clients, err := st.GetAllClients()
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}
	loans, err := st.GetAllLoans()
	if err != nil {
		return fmt.Errorf("load loans: %w", err)
	}

	snap := Snapshot{
		ExportedAt: calendar.ToDateString(time.Now()),
		Clients:    make([]ClientRecord, 0, len(clients)),
		Loans:      make([]LoanRecord, 0, len(loans)),
	}
	for _, c := range clients {
		snap.Clients = append(snap.Clients, ClientRecord{
			ID:       c.ID.String(),
			Name:     c.Name,
			Document: c.Document,
			Phone:    c.Phone,
			Email:    c.Email,
			Notes:    c.Notes,
		})
	}
	for _, l := range loans {
		snap.Loans = append(snap.Loans, encodeLoan(l))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func encodeLoan(l *models.Loan) LoanRecord {
	rec := LoanRecord{
		ID:           l.ID.String(),
		ClientID:     l.ClientID.String(),
		Principal:    l.Principal,
		RateOrAmount: l.RateOrAmount,
		InterestMode: string(l.InterestMode),
		Frequency:    string(l.Frequency),
		Duration:     l.Duration,
		Method:       string(l.Method),
		StartDate:    calendar.ToDateString(l.StartDate),
		EndDate:      calendar.ToDateString(l.EndDate),
		Status:       string(l.Status),
		Installments: make([]InstallmentRecord, 0, len(l.Installments)),
	}
	for _, inst := range l.Installments {
		ir := InstallmentRecord{
			Number:          inst.Number,
			DueDate:         calendar.ToDateString(inst.DueDate),
			TotalAmount:     inst.TotalAmount,
			CapitalPortion:  inst.CapitalPortion,
			InterestPortion: inst.InterestPortion,
			Status:          string(inst.Status),
		}
		if inst.PaymentDate != nil {
			ir.PaymentDate = calendar.ToDateString(*inst.PaymentDate)
		}
		rec.Installments = append(rec.Installments, ir)
	}
	return rec
}

// Import reads a snapshot and stores every valid record, last write
// wins. Malformed records are collected in the report instead of
// aborting the whole restore.
func Import(st store.Storage, r io.Reader) (*ImportReport, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	report := &ImportReport{}
	now := time.Now()

	knownClients := make(map[uuid.UUID]bool)
	for _, rec := range snap.Clients {
		client, err := decodeClient(rec, now)
		if err != nil {
			report.Malformed = append(report.Malformed, MalformedRecord{Kind: "client", ID: rec.ID, Reason: err.Error()})
			continue
		}
		if err := st.SaveClient(client); err != nil {
			return nil, fmt.Errorf("save client %s: %w", client.ID, err)
		}
		knownClients[client.ID] = true
		report.ClientsImported++
	}

	for _, rec := range snap.Loans {
		loan, err := decodeLoan(rec, now)
		if err != nil {
			report.Malformed = append(report.Malformed, MalformedRecord{Kind: "loan", ID: rec.ID, Reason: err.Error()})
			continue
		}
		if !knownClients[loan.ClientID] {
			if _, err := st.GetClient(loan.ClientID); err != nil {
				report.Malformed = append(report.Malformed, MalformedRecord{Kind: "loan", ID: rec.ID, Reason: "unknown client id"})
				continue
			}
		}
		if err := st.SaveLoan(loan); err != nil {
			return nil, fmt.Errorf("save loan %s: %w", loan.ID, err)
		}
		report.LoansImported++
	}
	return report, nil
}

func decodeClient(rec ClientRecord, now time.Time) (*models.Client, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}
	if rec.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return &models.Client{
		ID:        id,
		Name:      rec.Name,
		Document:  rec.Document,
		Phone:     rec.Phone,
		Email:     rec.Email,
		Notes:     rec.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func decodeLoan(rec LoanRecord, now time.Time) (*models.Loan, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}
	clientID, err := uuid.Parse(rec.ClientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client id: %w", err)
	}
	if !rec.Principal.IsPositive() {
		return nil, fmt.Errorf("principal must be positive")
	}
	if rec.Duration < 1 {
		return nil, fmt.Errorf("duration must be at least 1")
	}
	mode := models.InterestMode(rec.InterestMode)
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown interest mode %q", rec.InterestMode)
	}
	freq := models.Frequency(rec.Frequency)
	if !freq.Valid() {
		return nil, fmt.Errorf("unknown frequency %q", rec.Frequency)
	}
	method := models.AmortizationMethod(rec.Method)
	if !method.Valid() {
		return nil, fmt.Errorf("unknown method %q", rec.Method)
	}
	status := models.LoanStatus(rec.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", rec.Status)
	}
	startDate, err := calendar.ParseDate(rec.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	endDate, err := calendar.ParseDate(rec.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}
	if len(rec.Installments) != rec.Duration {
		return nil, fmt.Errorf("expected %d installments, got %d", rec.Duration, len(rec.Installments))
	}

	installments := make([]models.Installment, 0, rec.Duration)
	for i, ir := range rec.Installments {
		if ir.Number != i+1 {
			return nil, fmt.Errorf("installment numbers must be contiguous from 1, got %d at position %d", ir.Number, i)
		}
		dueDate, err := calendar.ParseDate(ir.DueDate)
		if err != nil {
			return nil, fmt.Errorf("installment %d: invalid due date: %w", ir.Number, err)
		}
		st := models.InstallmentStatus(ir.Status)
		if st != models.InstallmentPending && st != models.InstallmentPaid {
			return nil, fmt.Errorf("installment %d: unknown status %q", ir.Number, ir.Status)
		}
		inst := models.Installment{
			Number:          ir.Number,
			DueDate:         dueDate,
			TotalAmount:     ir.TotalAmount,
			CapitalPortion:  ir.CapitalPortion,
			InterestPortion: ir.InterestPortion,
			Status:          st,
		}
		if ir.PaymentDate != "" {
			pd, err := calendar.ParseDate(ir.PaymentDate)
			if err != nil {
				return nil, fmt.Errorf("installment %d: invalid payment date: %w", ir.Number, err)
			}
			inst.PaymentDate = &pd
		}
		installments = append(installments, inst)
	}

	return &models.Loan{
		ID:           id,
		ClientID:     clientID,
		Principal:    rec.Principal,
		RateOrAmount: rec.RateOrAmount,
		InterestMode: mode,
		Frequency:    freq,
		Duration:     rec.Duration,
		Method:       method,
		StartDate:    startDate,
		EndDate:      endDate,
		Installments: installments,
		Status:       status,
		// Aggregates are derived, never trusted from the wire.
		TotalPayable: ledger.TotalPayable(installments),
		TotalPaid:    ledger.TotalPaid(installments),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
