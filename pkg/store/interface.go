package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mplata/loantrack/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence operations for clients and loans.
// Saves are upserts with last-write-wins semantics: at most one record
// per id. A loan is always saved as a unit, its installment list
// replacing whatever was stored before.
type Storage interface {
	SaveClient(client *models.Client) error
	GetClient(id uuid.UUID) (*models.Client, error)
	DeleteClient(id uuid.UUID) error
	GetAllClients() ([]*models.Client, error)

	SaveLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error)

	Close() error
}
