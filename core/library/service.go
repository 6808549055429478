package library

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
)

var (
	// errors
	ErrBookNotFound   = errors.New("book not found")
	ErrRecordNotFound = errors.New("borrow record not found")
	ErrNoCopies       = errors.New("no copies available")
	ErrAlreadyOpen    = errors.New("user already has this book on loan")
)

type (
	Repository interface {
		CreateBook(ctx context.Context, b Book) (Book, error)
		GetBookByID(ctx context.Context, tenantID, id string) (Book, error)
		QueryBooks(ctx context.Context, tenantID, search string) ([]Book, error)
		// UpdateBookCopies adjusts CopiesAvailable by delta; it fails
		// with ErrNoCopies when the count would go negative.
		UpdateBookCopies(ctx context.Context, tenantID, id string, delta int) error

		CreateBorrowRecord(ctx context.Context, r BorrowRecord) (BorrowRecord, error)
		GetBorrowRecordByID(ctx context.Context, tenantID, id string) (BorrowRecord, error)
		GetOpenBorrowRecord(ctx context.Context, tenantID, bookID, userID string) (BorrowRecord, error)
		QueryBorrowRecords(ctx context.Context, tenantID, userID string) ([]BorrowRecord, error)
		UpdateBorrowRecord(ctx context.Context, r BorrowRecord) (BorrowRecord, error)
		// QueryOverdueRecords returns open records past their due date
		// across all tenants, for the periodic sweep.
		QueryOverdueRecords(ctx context.Context, asOf time.Time) ([]BorrowRecord, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) AddBook(ctx context.Context, tenantID string, nb NewBook) (Book, error) {
	now := time.Now().UTC()
	b := Book{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		Title:           nb.Title,
		Author:          nb.Author,
		ISBN:            nb.ISBN,
		CopiesTotal:     nb.Copies,
		CopiesAvailable: nb.Copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateBook(ctx, b)
}

func (svc *Service) GetBook(ctx context.Context, tenantID, id string) (Book, error) {
	return svc.repo.GetBookByID(ctx, tenantID, id)
}

func (svc *Service) QueryBooks(ctx context.Context, tenantID, search string) ([]Book, error) {
	return svc.repo.QueryBooks(ctx, tenantID, core.CleanString(search))
}

// Borrow lends one copy to the user. One open record per (book, user).
func (svc *Service) Borrow(ctx context.Context, tenantID string, br BorrowRequest) (BorrowRecord, error) {
	if _, err := svc.repo.GetOpenBorrowRecord(ctx, tenantID, br.BookID, br.UserID); err == nil {
		return BorrowRecord{}, core.NewValidationError(ErrAlreadyOpen, core.FieldError{Field: "book_id", Error: ErrAlreadyOpen.Error()})
	} else if err != ErrRecordNotFound {
		return BorrowRecord{}, err
	}

	if err := svc.repo.UpdateBookCopies(ctx, tenantID, br.BookID, -1); err != nil {
		if err == ErrNoCopies {
			return BorrowRecord{}, core.NewValidationError(err, core.FieldError{Field: "book_id", Error: err.Error()})
		}
		return BorrowRecord{}, err
	}

	now := time.Now().UTC()
	r := BorrowRecord{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		BookID:     br.BookID,
		UserID:     br.UserID,
		BorrowedAt: now,
		DueDate:    br.ParseDueDate(now),
		Status:     StatusBorrowed,
	}
	rec, err := svc.repo.CreateBorrowRecord(ctx, r)
	if err != nil {
		// put the copy back; the loan never happened
		_ = svc.repo.UpdateBookCopies(ctx, tenantID, br.BookID, 1)
		return BorrowRecord{}, err
	}
	return rec, nil
}

// Return closes an open borrow record and releases the copy.
func (svc *Service) Return(ctx context.Context, tenantID, recordID string) (BorrowRecord, error) {
	rec, err := svc.repo.GetBorrowRecordByID(ctx, tenantID, recordID)
	if err != nil {
		return BorrowRecord{}, err
	}
	if !rec.IsOpen() {
		return rec, nil
	}
	rec.Status = StatusReturned
	rec.ReturnedAt = time.Now().UTC()
	rec, err = svc.repo.UpdateBorrowRecord(ctx, rec)
	if err != nil {
		return BorrowRecord{}, err
	}
	if err = svc.repo.UpdateBookCopies(ctx, tenantID, rec.BookID, 1); err != nil {
		return BorrowRecord{}, err
	}
	return rec, nil
}

func (svc *Service) QueryBorrows(ctx context.Context, tenantID, userID string) ([]BorrowRecord, error) {
	return svc.repo.QueryBorrowRecords(ctx, tenantID, userID)
}

// MarkOverdue flips open records past their due date to "overdue" and
// returns them so the caller can queue the reminder emails.
func (svc *Service) MarkOverdue(ctx context.Context, now time.Time) ([]BorrowRecord, error) {
	records, err := svc.repo.QueryOverdueRecords(ctx, now.UTC())
	if err != nil {
		return nil, err
	}
	marked := make([]BorrowRecord, 0, len(records))
	for _, rec := range records {
		rec.Status = StatusOverdue
		updated, err := svc.repo.UpdateBorrowRecord(ctx, rec)
		if err != nil {
			return marked, err
		}
		marked = append(marked, updated)
	}
	return marked, nil
}
