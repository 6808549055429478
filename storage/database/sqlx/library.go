package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/library"
)

type dbBook struct {
	ID              string    `db:"id"`
	TenantID        string    `db:"tenant_id"`
	Title           string    `db:"title"`
	Author          string    `db:"author"`
	ISBN            string    `db:"isbn"`
	CopiesTotal     int       `db:"copies_total"`
	CopiesAvailable int       `db:"copies_available"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (b dbBook) unmarshal() library.Book {
	return library.Book{
		ID:              b.ID,
		TenantID:        b.TenantID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		CopiesTotal:     b.CopiesTotal,
		CopiesAvailable: b.CopiesAvailable,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

type dbBorrowRecord struct {
	ID         string       `db:"id"`
	TenantID   string       `db:"tenant_id"`
	BookID     string       `db:"book_id"`
	UserID     string       `db:"user_id"`
	BorrowedAt time.Time    `db:"borrowed_at"`
	DueDate    time.Time    `db:"due_date"`
	ReturnedAt sql.NullTime `db:"returned_at"`
	Status     string       `db:"status"`
}

func (r dbBorrowRecord) unmarshal() library.BorrowRecord {
	rec := library.BorrowRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		BorrowedAt: r.BorrowedAt.UTC(),
		DueDate:    r.DueDate.UTC(),
		Status:     r.Status,
	}
	if r.ReturnedAt.Valid {
		rec.ReturnedAt = r.ReturnedAt.Time.UTC()
	}
	return rec
}

func marshalBorrowRecord(rec library.BorrowRecord) dbBorrowRecord {
	return dbBorrowRecord{
		ID:         rec.ID,
		TenantID:   rec.TenantID,
		BookID:     rec.BookID,
		UserID:     rec.UserID,
		BorrowedAt: rec.BorrowedAt.UTC(),
		DueDate:    rec.DueDate.UTC(),
		ReturnedAt: sql.NullTime{Time: rec.ReturnedAt.UTC(), Valid: !rec.ReturnedAt.IsZero()},
		Status:     rec.Status,
	}
}

type libraryRepository struct {
	db *sqlx.DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *sqlx.DB) *libraryRepository {
	return &libraryRepository{db: db}
}

func (repo libraryRepository) CreateBook(ctx context.Context, b library.Book) (library.Book, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO book (id, tenant_id, title, author, isbn, copies_total, copies_available, created_at, updated_at)
		VALUES (:id, :tenant_id, :title, :author, :isbn, :copies_total, :copies_available, :created_at, :updated_at)`,
		dbBook{
			ID:              b.ID,
			TenantID:        b.TenantID,
			Title:           b.Title,
			Author:          b.Author,
			ISBN:            b.ISBN,
			CopiesTotal:     b.CopiesTotal,
			CopiesAvailable: b.CopiesAvailable,
			CreatedAt:       b.CreatedAt.UTC(),
			UpdatedAt:       b.UpdatedAt.UTC(),
		})
	if err != nil {
		return library.Book{}, errors.Wrap(err, "creating book")
	}
	return b, nil
}

func (repo libraryRepository) GetBookByID(ctx context.Context, tenantID, id string) (library.Book, error) {
	var b dbBook
	err := repo.db.GetContext(ctx, &b, `SELECT * FROM book WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return library.Book{}, library.ErrBookNotFound
		}
		return library.Book{}, errors.Wrap(err, "getting book")
	}
	return b.unmarshal(), nil
}

func (repo libraryRepository) QueryBooks(ctx context.Context, tenantID, search string) ([]library.Book, error) {
	q := `SELECT * FROM book WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if search != "" {
		q += ` AND (title ILIKE $2 OR author ILIKE $2 OR isbn = $3)`
		args = append(args, "%"+search+"%", search)
	}
	q += ` ORDER BY title`

	var bs []dbBook
	if err := repo.db.SelectContext(ctx, &bs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying books")
	}
	res := make([]library.Book, 0, len(bs))
	for _, b := range bs {
		res = append(res, b.unmarshal())
	}
	return res, nil
}

func (repo libraryRepository) UpdateBookCopies(ctx context.Context, tenantID, id string, delta int) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE book SET copies_available = copies_available + $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2 AND copies_available + $3 >= 0`,
		tenantID, id, delta, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "updating book copies")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// either the book is missing or the count would go negative
		if _, err = repo.GetBookByID(ctx, tenantID, id); err != nil {
			return err
		}
		return library.ErrNoCopies
	}
	return nil
}

func (repo libraryRepository) CreateBorrowRecord(ctx context.Context, r library.BorrowRecord) (library.BorrowRecord, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO borrow_record (id, tenant_id, book_id, user_id, borrowed_at, due_date, returned_at, status)
		VALUES (:id, :tenant_id, :book_id, :user_id, :borrowed_at, :due_date, :returned_at, :status)`,
		marshalBorrowRecord(r))
	if err != nil {
		return library.BorrowRecord{}, errors.Wrap(err, "creating borrow record")
	}
	return r, nil
}

func (repo libraryRepository) GetBorrowRecordByID(ctx context.Context, tenantID, id string) (library.BorrowRecord, error) {
	var r dbBorrowRecord
	err := repo.db.GetContext(ctx, &r, `SELECT * FROM borrow_record WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return library.BorrowRecord{}, library.ErrRecordNotFound
		}
		return library.BorrowRecord{}, errors.Wrap(err, "getting borrow record")
	}
	return r.unmarshal(), nil
}

func (repo libraryRepository) GetOpenBorrowRecord(ctx context.Context, tenantID, bookID, userID string) (library.BorrowRecord, error) {
	var r dbBorrowRecord
	err := repo.db.GetContext(ctx, &r, `
		SELECT * FROM borrow_record
		WHERE tenant_id = $1 AND book_id = $2 AND user_id = $3 AND status IN ('borrowed', 'overdue')`,
		tenantID, bookID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return library.BorrowRecord{}, library.ErrRecordNotFound
		}
		return library.BorrowRecord{}, errors.Wrap(err, "getting open borrow record")
	}
	return r.unmarshal(), nil
}

func (repo libraryRepository) QueryBorrowRecords(ctx context.Context, tenantID, userID string) ([]library.BorrowRecord, error) {
	q := `SELECT * FROM borrow_record WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if userID != "" {
		q += ` AND user_id = $2`
		args = append(args, userID)
	}
	q += ` ORDER BY borrowed_at DESC`

	var rs []dbBorrowRecord
	if err := repo.db.SelectContext(ctx, &rs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying borrow records")
	}
	res := make([]library.BorrowRecord, 0, len(rs))
	for _, r := range rs {
		res = append(res, r.unmarshal())
	}
	return res, nil
}

func (repo libraryRepository) UpdateBorrowRecord(ctx context.Context, r library.BorrowRecord) (library.BorrowRecord, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE borrow_record SET due_date = :due_date, returned_at = :returned_at, status = :status
		WHERE tenant_id = :tenant_id AND id = :id`, marshalBorrowRecord(r))
	if err != nil {
		return library.BorrowRecord{}, errors.Wrap(err, "updating borrow record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.BorrowRecord{}, library.ErrRecordNotFound
	}
	return r, nil
}

func (repo libraryRepository) QueryOverdueRecords(ctx context.Context, asOf time.Time) ([]library.BorrowRecord, error) {
	var rs []dbBorrowRecord
	err := repo.db.SelectContext(ctx, &rs, `
		SELECT * FROM borrow_record
		WHERE status = 'borrowed' AND due_date < $1
		ORDER BY tenant_id, due_date`, asOf.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying overdue records")
	}
	res := make([]library.BorrowRecord, 0, len(rs))
	for _, r := range rs {
		res = append(res, r.unmarshal())
	}
	return res, nil
}
