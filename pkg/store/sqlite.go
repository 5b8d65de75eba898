package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mplata/loantrack/pkg/calendar"
	"github.com/mplata/loantrack/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dataSourceName and initializes
// the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist. Monetary
// fields are stored as TEXT so no precision is lost; calendar dates are
// stored in their canonical YYYY-MM-DD form.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		document TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		rate_or_amount TEXT NOT NULL,
		interest_mode TEXT NOT NULL,
		frequency TEXT NOT NULL,
		duration INTEGER NOT NULL,
		method TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(client_id) REFERENCES clients(id)
	);
	CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		capital_portion TEXT NOT NULL,
		interest_portion TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_date DATETIME,
		PRIMARY KEY(loan_id, number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveClient upserts a client record, last write wins.
func (s *SQLiteStore) SaveClient(client *models.Client) error {
	_, err := s.db.Exec(
		`INSERT INTO clients (id, name, document, phone, email, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			phone = excluded.phone,
			email = excluded.email,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		client.ID.String(), client.Name, client.Document, client.Phone, client.Email, client.Notes, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its id.
func (s *SQLiteStore) GetClient(id uuid.UUID) (*models.Client, error) {
	var client models.Client
	var idStr string

	row := s.db.QueryRow(`SELECT id, name, document, phone, email, notes, created_at, updated_at FROM clients WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &client.Name, &client.Document, &client.Phone, &client.Email, &client.Notes, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	client.ID = uuid.MustParse(idStr)
	return &client, nil
}

// DeleteClient removes a client record.
func (s *SQLiteStore) DeleteClient(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM clients WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetAllClients retrieves all clients ordered by name.
func (s *SQLiteStore) GetAllClients() ([]*models.Client, error) {
	rows, err := s.db.Query(`SELECT id, name, document, phone, email, notes, created_at, updated_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		var client models.Client
		var idStr string
		if err := rows.Scan(&idStr, &client.Name, &client.Document, &client.Phone, &client.Email, &client.Notes, &client.CreatedAt, &client.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		client.ID = uuid.MustParse(idStr)
		clients = append(clients, &client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return clients, nil
}

// SaveLoan upserts the loan and replaces its installment list wholesale
// inside one transaction, so a stored loan is always internally
// consistent with its schedule.
func (s *SQLiteStore) SaveLoan(loan *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, client_id, principal, rate_or_amount, interest_mode, frequency, duration, method, start_date, end_date, status, total_payable, total_paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			principal = excluded.principal,
			rate_or_amount = excluded.rate_or_amount,
			interest_mode = excluded.interest_mode,
			frequency = excluded.frequency,
			duration = excluded.duration,
			method = excluded.method,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			total_payable = excluded.total_payable,
			total_paid = excluded.total_paid,
			updated_at = excluded.updated_at`,
		loan.ID.String(), loan.ClientID.String(), loan.Principal, loan.RateOrAmount, string(loan.InterestMode),
		string(loan.Frequency), loan.Duration, string(loan.Method),
		calendar.ToDateString(loan.StartDate), calendar.ToDateString(loan.EndDate),
		string(loan.Status), loan.TotalPayable, loan.TotalPaid, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, loan.ID.String()); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	for _, inst := range loan.Installments {
		var paymentDate interface{}
		if inst.PaymentDate != nil {
			paymentDate = *inst.PaymentDate
		}
		_, err := tx.Exec(
			`INSERT INTO installments (loan_id, number, due_date, total_amount, capital_portion, interest_portion, status, payment_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			loan.ID.String(), inst.Number, calendar.ToDateString(inst.DueDate),
			inst.TotalAmount, inst.CapitalPortion, inst.InterestPortion, string(inst.Status), paymentDate,
		)
		if err != nil {
			return fmt.Errorf("failed to save installment %d: %w", inst.Number, err)
		}
	}

	return tx.Commit()
}

// GetLoan retrieves a loan and its full schedule by id.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT id, client_id, principal, rate_or_amount, interest_mode, frequency, duration, method, start_date, end_date, status, total_payable, total_paid, created_at, updated_at FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	if err := s.loadInstallments(loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// DeleteLoan removes a loan and its installments within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// GetAllLoans retrieves every loan with its schedule.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT id, client_id, principal, rate_or_amount, interest_mode, frequency, duration, method, start_date, end_date, status, total_payable, total_paid, created_at, updated_at FROM loans`)
}

// GetLoansForClient retrieves the loans belonging to a client.
func (s *SQLiteStore) GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error) {
	return s.queryLoans(`SELECT id, client_id, principal, rate_or_amount, interest_mode, frequency, duration, method, start_date, end_date, status, total_payable, total_paid, created_at, updated_at FROM loans WHERE client_id = ?`, clientID.String())
}

func (s *SQLiteStore) queryLoans(query string, args ...interface{}) ([]*models.Loan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	for _, loan := range loans {
		if err := s.loadInstallments(loan); err != nil {
			return nil, err
		}
	}
	return loans, nil
}

// scanLoan reads one loan row through the given scan function.
func scanLoan(scan func(dest ...interface{}) error) (*models.Loan, error) {
	var loan models.Loan
	var idStr, clientIDStr, startDate, endDate string

	err := scan(&idStr, &clientIDStr, &loan.Principal, &loan.RateOrAmount, (*string)(&loan.InterestMode),
		(*string)(&loan.Frequency), &loan.Duration, (*string)(&loan.Method),
		&startDate, &endDate, (*string)(&loan.Status), &loan.TotalPayable, &loan.TotalPaid,
		&loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}

	loan.ID = uuid.MustParse(idStr)
	loan.ClientID = uuid.MustParse(clientIDStr)
	if loan.StartDate, err = calendar.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("stored start date: %w", err)
	}
	if loan.EndDate, err = calendar.ParseDate(endDate); err != nil {
		return nil, fmt.Errorf("stored end date: %w", err)
	}
	return &loan, nil
}

// loadInstallments attaches the ordered schedule to the loan.
func (s *SQLiteStore) loadInstallments(loan *models.Loan) error {
	rows, err := s.db.Query(`SELECT number, due_date, total_amount, capital_portion, interest_portion, status, payment_date FROM installments WHERE loan_id = ? ORDER BY number ASC`, loan.ID.String())
	if err != nil {
		return fmt.Errorf("failed to get installments for loan %s: %w", loan.ID, err)
	}
	defer rows.Close()

	var installments []models.Installment
	for rows.Next() {
		var inst models.Installment
		var dueDate string
		var paymentDate sql.NullTime
		if err := rows.Scan(&inst.Number, &dueDate, &inst.TotalAmount, &inst.CapitalPortion, &inst.InterestPortion, (*string)(&inst.Status), &paymentDate); err != nil {
			return fmt.Errorf("failed to scan installment row: %w", err)
		}
		if inst.DueDate, err = calendar.ParseDate(dueDate); err != nil {
			return fmt.Errorf("stored due date: %w", err)
		}
		if paymentDate.Valid {
			t := paymentDate.Time
			inst.PaymentDate = &t
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during installment iteration: %w", err)
	}
	loan.Installments = installments
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
