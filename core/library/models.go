package library

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shuleapp/shule/core"
)

// Borrow statuses
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

const defaultLoanPeriod = 14 * 24 * time.Hour

type Book struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	ISBN            string    `json:"isbn,omitempty"`
	CopiesTotal     int       `json:"copies_total"`
	CopiesAvailable int       `json:"copies_available"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// BorrowRecord tracks one copy lent to one user. Records past DueDate
// with status "borrowed" are flipped to "overdue" by the periodic sweep,
// which also queues the reminder email.
type BorrowRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	BookID     string    `json:"book_id"`
	UserID     string    `json:"user_id"`
	BorrowedAt time.Time `json:"borrowed_at"` // UTC
	DueDate    time.Time `json:"due_date"`    // UTC
	ReturnedAt time.Time `json:"returned_at,omitempty"`
	Status     string    `json:"status"`
}

func (r *BorrowRecord) IsOpen() bool {
	return r.Status == StatusBorrowed || r.Status == StatusOverdue
}

// NewBook contains information needed to add a Book to the catalogue.
type NewBook struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author"`
	ISBN   string `json:"isbn" validate:"omitempty,isbn"`
	Copies int    `json:"copies" validate:"omitempty,min=1"`
}

func (nb *NewBook) Validate(validate *validator.Validate) error {
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	if nb.Copies == 0 {
		nb.Copies = 1
	}
	return validate.Struct(nb)
}

// BorrowRequest lends a copy of a book to a user.
type BorrowRequest struct {
	BookID  string `json:"book_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	DueDate string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

func (br *BorrowRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(br)
}

// ParseDueDate returns the requested due date or the default loan period
// from `now` when none was given.
func (br *BorrowRequest) ParseDueDate(now time.Time) time.Time {
	if br.DueDate == "" {
		return now.UTC().Add(defaultLoanPeriod)
	}
	due, err := time.Parse("2006-01-02", br.DueDate)
	if err != nil {
		return now.UTC().Add(defaultLoanPeriod)
	}
	return due.UTC()
}
