package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mplata/loantrack/pkg/backup"
	"github.com/mplata/loantrack/pkg/calendar"
	"github.com/mplata/loantrack/pkg/ledger"
	"github.com/mplata/loantrack/pkg/metrics"
	"github.com/mplata/loantrack/pkg/models"
	"github.com/mplata/loantrack/pkg/schedule"
	"github.com/mplata/loantrack/pkg/store"
)

// Server holds the ledger instance and the handlers around it.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     *zap.Logger
}

// NewServer builds a Server over the given storage.
func NewServer(s store.Storage, log *zap.Logger) *Server {
	return &Server{
		ledger:  ledger.New(s),
		storage: s,
		log:     log,
	}
}

// loanRequest is the wire form of loan terms, shared by create, update
// and preview. Rate override keys arrive as JSON strings.
type loanRequest struct {
	ClientID      string                     `json:"client_id"`
	Principal     decimal.Decimal            `json:"principal"`
	RateOrAmount  decimal.Decimal            `json:"rate_or_amount"`
	InterestMode  models.InterestMode        `json:"interest_mode"`
	Frequency     models.Frequency           `json:"frequency"`
	Duration      int                        `json:"duration"`
	Method        models.AmortizationMethod  `json:"method"`
	StartDate     string                     `json:"start_date"`
	RateOverrides map[string]decimal.Decimal `json:"rate_overrides,omitempty"`
}

func (r *loanRequest) toParams() (schedule.Params, error) {
	var p schedule.Params
	if !r.InterestMode.Valid() {
		return p, fmt.Errorf("unknown interest mode %q", r.InterestMode)
	}
	if !r.Frequency.Valid() {
		return p, fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	if !r.Method.Valid() {
		return p, fmt.Errorf("unknown method %q", r.Method)
	}
	start, err := calendar.ParseDate(r.StartDate)
	if err != nil {
		return p, err
	}

	var overrides models.RateOverrides
	if len(r.RateOverrides) > 0 {
		overrides = make(models.RateOverrides, len(r.RateOverrides))
		for key, value := range r.RateOverrides {
			n, err := strconv.Atoi(key)
			if err != nil || n < 1 || n > r.Duration {
				return p, fmt.Errorf("rate override key %q: want an installment number in [1, %d]", key, r.Duration)
			}
			overrides[n] = value
		}
	}

	return schedule.Params{
		Principal:     r.Principal,
		RateOrAmount:  r.RateOrAmount,
		InterestMode:  r.InterestMode,
		Frequency:     r.Frequency,
		Duration:      r.Duration,
		Method:        r.Method,
		StartDate:     start,
		RateOverrides: overrides,
	}, nil
}

// installmentView decorates an installment with its effective status,
// which is recomputed on every read rather than stored.
type installmentView struct {
	models.Installment
	DueDate         string           `json:"due_date"`
	EffectiveStatus models.StatusTag `json:"effective_status"`
}

// loanView renders a loan with date-only strings and per-installment
// effective statuses.
type loanView struct {
	*models.Loan
	StartDate    string            `json:"start_date"`
	EndDate      string            `json:"end_date"`
	StatusLabel  string            `json:"status_label"`
	Installments []installmentView `json:"installments"`
}

func newLoanView(loan *models.Loan, now time.Time) loanView {
	views := make([]installmentView, 0, len(loan.Installments))
	for _, inst := range loan.Installments {
		views = append(views, installmentView{
			Installment:     inst,
			DueDate:         calendar.ToDateString(inst.DueDate),
			EffectiveStatus: ledger.EffectiveStatus(inst, now),
		})
	}
	return loanView{
		Loan:         loan,
		StartDate:    calendar.ToDateString(loan.StartDate),
		EndDate:      calendar.ToDateString(loan.EndDate),
		StatusLabel:  loan.Status.Label(),
		Installments: views,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ledger.ErrInstallmentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, schedule.ErrInvalidDuration), errors.Is(err, schedule.ErrInvalidPrincipal):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// --- clients ---

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var client models.Client
	if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if client.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	created, err := s.ledger.CreateClient(&client)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.GetAllClients()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	s.writeJSON(w, http.StatusOK, clients)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	client, err := s.ledger.GetClient(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}

func (s *Server) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	var client models.Client
	if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	client.ID = id

	if err := s.ledger.UpdateClient(&client); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	if err := s.ledger.DeleteClient(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listClientLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	loans, err := s.ledger.GetLoansForClient(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loanViews(loans))
}

// --- loans ---

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	params, err := req.toParams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(clientID, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.SchedulesGenerated.Inc()
	s.log.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int("duration", loan.Duration))
	s.writeJSON(w, http.StatusCreated, newLoanView(loan, time.Now()))
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loanViews(loans))
}

func loanViews(loans []*models.Loan) []loanView {
	now := time.Now()
	views := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, newLoanView(loan, now))
	}
	return views
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newLoanView(loan, time.Now()))
}

// updateLoanHandler replaces the loan's terms. The schedule is
// regenerated wholesale; paid installments keep only the fact and date
// of payment, adopting the newly computed amounts for their position.
func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params, err := req.toParams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.UpdateLoanTerms(id, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.SchedulesGenerated.Inc()
	s.writeJSON(w, http.StatusOK, newLoanView(loan, time.Now()))
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	if err := s.ledger.DeleteLoan(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markDefaultedHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.MarkDefaulted(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newLoanView(loan, time.Now()))
}

// --- payments ---

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		http.Error(w, "invalid installment number", http.StatusBadRequest)
		return
	}

	var req struct {
		PaymentDate string `json:"payment_date,omitempty"`
	}
	if r.Body != nil {
		// An empty body means "paid now".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	paymentTime := time.Now()
	if req.PaymentDate != "" {
		if paymentTime, err = calendar.ParseDate(req.PaymentDate); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	loan, err := s.ledger.RecordPayment(id, number, paymentTime)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.PaymentsRecorded.Inc()
	s.log.Info("payment recorded",
		zap.String("loan_id", id.String()),
		zap.Int("installment", number))
	s.writeJSON(w, http.StatusOK, newLoanView(loan, time.Now()))
}

// --- schedule preview ---

// previewScheduleHandler generates a schedule without persisting
// anything, so the UI can show due dates and totals before committing.
func (s *Server) previewScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params, err := req.toParams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	installments, err := schedule.Generate(params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.SchedulesGenerated.Inc()

	now := time.Now()
	views := make([]installmentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, installmentView{
			Installment:     inst,
			DueDate:         calendar.ToDateString(inst.DueDate),
			EffectiveStatus: ledger.EffectiveStatus(inst, now),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"installments":  views,
		"end_date":      calendar.ToDateString(installments[len(installments)-1].DueDate),
		"total_payable": ledger.TotalPayable(installments),
	})
}

// --- backup ---

func (s *Server) exportBackupHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=loantrack-backup.json")
	if err := backup.Export(s.storage, w); err != nil {
		s.log.Error("backup export failed", zap.Error(err))
	}
}

func (s *Server) importBackupHandler(w http.ResponseWriter, r *http.Request) {
	report, err := backup.Import(s.storage, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Info("backup imported",
		zap.Int("clients", report.ClientsImported),
		zap.Int("loans", report.LoansImported),
		zap.Int("malformed", len(report.Malformed)))
	s.writeJSON(w, http.StatusOK, report)
}

// registerRoutes wires every handler onto the router.
func (s *Server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	router.HandleFunc("/clients/{id}", s.getClientHandler).Methods("GET")
	router.HandleFunc("/clients/{id}", s.updateClientHandler).Methods("PUT")
	router.HandleFunc("/clients/{id}", s.deleteClientHandler).Methods("DELETE")
	router.HandleFunc("/clients/{id}/loans", s.listClientLoansHandler).Methods("GET")

	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/default", s.markDefaultedHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/installments/{number}/payment", s.recordPaymentHandler).Methods("POST")

	router.HandleFunc("/schedule/preview", s.previewScheduleHandler).Methods("POST")

	router.HandleFunc("/backup", s.exportBackupHandler).Methods("GET")
	router.HandleFunc("/backup", s.importBackupHandler).Methods("POST")
}
