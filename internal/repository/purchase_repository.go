package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ebook-storefront/internal/model"
)

// PurchaseRepo records completed purchases.  The (session_id, book_id)
// unique key is the idempotency key for fulfillment: a second insert for
// the same pair fails with a duplicate key error instead of writing again.
type PurchaseRepo struct {
	db    *sql.DB
	books *BookRepo
}

func NewPurchaseRepo(db *sql.DB, books *BookRepo) *PurchaseRepo {
	return &PurchaseRepo{db: db, books: books}
}

// CreatePurchaseIfAbsent inserts the purchase and increments the book's
// purchase counter in one transaction.  It returns ErrPurchaseExists when
// the (session_id, book_id) pair is already recorded and
// ErrReferenceMissing when the user or book does not exist.  On success
// p.ID and p.CreatedAt are populated.
func (r *PurchaseRepo) CreatePurchaseIfAbsent(ctx context.Context, p *model.Purchase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if p.Status == "" {
		p.Status = model.PurchaseStatusCompleted
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO purchases (user_id, book_id, quantity, amount_cents, session_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.BookID, p.Quantity, p.AmountCents, p.SessionID, p.Status, now)
	if err != nil {
		switch {
		case isMySQLError(err, mysqlErrDuplicate):
			return ErrPurchaseExists
		case isMySQLError(err, mysqlErrNoReferenced):
			return ErrReferenceMissing
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := r.books.IncrementPurchaseCountTx(ctx, tx, p.BookID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	p.ID = uint64(id)
	p.CreatedAt = now
	return nil
}

// HasCompletedPurchase reports whether the user owns the book.
func (r *PurchaseRepo) HasCompletedPurchase(ctx context.Context, userID, bookID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM purchases WHERE user_id = ? AND book_id = ? AND status = ? LIMIT 1",
		userID, bookID, model.PurchaseStatusCompleted).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurchaseHistoryItem is one purchase with the book title, newest first.
type PurchaseHistoryItem struct {
	ID          uint64    `json:"id"`
	BookID      uint64    `json:"book_id"`
	Title       string    `json:"title"`
	Quantity    uint32    `json:"quantity"`
	AmountCents int64     `json:"amount_cents"`
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListByUser returns the user's purchase history.
func (r *PurchaseRepo) ListByUser(ctx context.Context, userID uint64) ([]PurchaseHistoryItem, error) {
	const q = `SELECT p.id, p.book_id, b.title, p.quantity, p.amount_cents, p.session_id, p.status, p.created_at
               FROM purchases p
               JOIN books b ON b.id = p.book_id
               WHERE p.user_id = ?
               ORDER BY p.created_at DESC, p.id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PurchaseHistoryItem{}
	for rows.Next() {
		var it PurchaseHistoryItem
		if err := rows.Scan(&it.ID, &it.BookID, &it.Title, &it.Quantity, &it.AmountCents,
			&it.SessionID, &it.Status, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// OwnedBook is a distinct purchased book together with the owner's own
// rating, if any.
type OwnedBook struct {
	BookID        uint64          `json:"book_id"`
	Title         string          `json:"title"`
	ThumbnailRef  *string         `json:"thumbnail_ref,omitempty"`
	AverageRating decimal.Decimal `json:"average_rating"`
	MyRating      *uint8          `json:"my_rating,omitempty"`
}

// ListOwnedBooks returns each book the user has bought once.
func (r *PurchaseRepo) ListOwnedBooks(ctx context.Context, userID uint64) ([]OwnedBook, error) {
	const q = `SELECT b.id, b.title, b.thumbnail_ref, b.average_rating, r.rating
               FROM books b
               JOIN (SELECT DISTINCT book_id FROM purchases WHERE user_id = ? AND status = ?) p ON p.book_id = b.id
               LEFT JOIN ratings r ON r.book_id = b.id AND r.user_id = ?
               ORDER BY b.title`
	rows, err := r.db.QueryContext(ctx, q, userID, model.PurchaseStatusCompleted, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []OwnedBook{}
	for rows.Next() {
		var (
			ob     OwnedBook
			thumb  sql.NullString
			rating sql.NullInt16
		)
		if err := rows.Scan(&ob.BookID, &ob.Title, &thumb, &ob.AverageRating, &rating); err != nil {
			return nil, err
		}
		if thumb.Valid {
			s := thumb.String
			ob.ThumbnailRef = &s
		}
		if rating.Valid {
			v := uint8(rating.Int16)
			ob.MyRating = &v
		}
		out = append(out, ob)
	}
	return out, rows.Err()
}

// GetContentRefForOwner returns the content reference of a book the user
// owns.  ErrForbidden when the user has not bought it, ErrNotFound when the
// book does not exist or has no content.
func (r *PurchaseRepo) GetContentRefForOwner(ctx context.Context, userID, bookID uint64) (string, error) {
	var content sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT content_ref FROM books WHERE id = ?", bookID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	owned, err := r.HasCompletedPurchase(ctx, userID, bookID)
	if err != nil {
		return "", err
	}
	if !owned {
		return "", ErrForbidden
	}
	if !content.Valid || content.String == "" {
		return "", ErrNotFound
	}
	return content.String, nil
}
