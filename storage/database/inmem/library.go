package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shuleapp/shule/core/library"
)

type libraryRepository struct {
	db *DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) *libraryRepository {
	return &libraryRepository{db: db}
}

func (repo *libraryRepository) CreateBook(ctx context.Context, b library.Book) (library.Book, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.books[b.ID] = &b
	return b, nil
}

func (repo *libraryRepository) GetBookByID(ctx context.Context, tenantID, id string) (library.Book, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if b, ok := repo.db.books[id]; ok && b.TenantID == tenantID {
		return *b, nil
	}
	return library.Book{}, library.ErrBookNotFound
}

func (repo *libraryRepository) QueryBooks(ctx context.Context, tenantID, search string) ([]library.Book, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var books []library.Book
	for _, b := range repo.db.books {
		if b.TenantID != tenantID {
			continue
		}
		if search != "" {
			s := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(b.Title), s) &&
				!strings.Contains(strings.ToLower(b.Author), s) &&
				b.ISBN != search {
				continue
			}
		}
		books = append(books, *b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books, nil
}

func (repo *libraryRepository) UpdateBookCopies(ctx context.Context, tenantID, id string, delta int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	b, ok := repo.db.books[id]
	if !ok || b.TenantID != tenantID {
		return library.ErrBookNotFound
	}
	if b.CopiesAvailable+delta < 0 {
		return library.ErrNoCopies
	}
	b.CopiesAvailable += delta
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *libraryRepository) CreateBorrowRecord(ctx context.Context, r library.BorrowRecord) (library.BorrowRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.borrows[r.ID] = &r
	return r, nil
}

func (repo *libraryRepository) GetBorrowRecordByID(ctx context.Context, tenantID, id string) (library.BorrowRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.borrows[id]; ok && r.TenantID == tenantID {
		return *r, nil
	}
	return library.BorrowRecord{}, library.ErrRecordNotFound
}

func (repo *libraryRepository) GetOpenBorrowRecord(ctx context.Context, tenantID, bookID, userID string) (library.BorrowRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.borrows {
		if r.TenantID == tenantID && r.BookID == bookID && r.UserID == userID && r.IsOpen() {
			return *r, nil
		}
	}
	return library.BorrowRecord{}, library.ErrRecordNotFound
}

func (repo *libraryRepository) QueryBorrowRecords(ctx context.Context, tenantID, userID string) ([]library.BorrowRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var records []library.BorrowRecord
	for _, r := range repo.db.borrows {
		if r.TenantID != tenantID {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].BorrowedAt.After(records[j].BorrowedAt) })
	return records, nil
}

func (repo *libraryRepository) UpdateBorrowRecord(ctx context.Context, r library.BorrowRecord) (library.BorrowRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.borrows[r.ID]
	if !ok || orig.TenantID != r.TenantID {
		return library.BorrowRecord{}, library.ErrRecordNotFound
	}
	orig.DueDate = r.DueDate
	orig.ReturnedAt = r.ReturnedAt
	orig.Status = r.Status
	return *orig, nil
}

func (repo *libraryRepository) QueryOverdueRecords(ctx context.Context, asOf time.Time) ([]library.BorrowRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var records []library.BorrowRecord
	for _, r := range repo.db.borrows {
		if r.Status == library.StatusBorrowed && r.DueDate.Before(asOf) {
			records = append(records, *r)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DueDate.Before(records[j].DueDate) })
	return records, nil
}
