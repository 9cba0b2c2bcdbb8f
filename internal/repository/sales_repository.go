package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// SalesRepo serves the admin reporting queries.  These are read-only
// projections, so sqlx struct scanning replaces hand-written Scan calls.
type SalesRepo struct {
	db *sqlx.DB
}

// NewSalesRepo wraps an existing *sql.DB; the pool is shared with the other
// repositories.
func NewSalesRepo(db *sql.DB) *SalesRepo {
	return &SalesRepo{db: sqlx.NewDb(db, "mysql")}
}

// BookSales aggregates purchases of one book.
type BookSales struct {
	BookID        uint64 `db:"book_id" json:"book_id"`
	Title         string `db:"title" json:"title"`
	PurchaseCount uint32 `db:"purchases_count" json:"purchases_count"`
	UnitsSold     int64  `db:"units_sold" json:"units_sold"`
	RevenueCents  int64  `db:"revenue_cents" json:"revenue_cents"`
}

// PurchaseRecord is a purchase as listed to administrators.
type PurchaseRecord struct {
	ID          uint64    `db:"id" json:"id"`
	UserID      uint64    `db:"user_id" json:"user_id"`
	UserEmail   string    `db:"email" json:"user_email"`
	BookID      uint64    `db:"book_id" json:"book_id"`
	Title       string    `db:"title" json:"title"`
	Quantity    uint32    `db:"quantity" json:"quantity"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SalesSummary returns per-book totals for every book, best sellers first.
func (r *SalesRepo) SalesSummary(ctx context.Context) ([]BookSales, error) {
	const q = `SELECT b.id AS book_id, b.title, b.purchases_count,
                      COALESCE(SUM(p.quantity), 0) AS units_sold,
                      COALESCE(SUM(p.amount_cents), 0) AS revenue_cents
               FROM books b
               LEFT JOIN purchases p ON p.book_id = b.id
               GROUP BY b.id, b.title, b.purchases_count
               ORDER BY revenue_cents DESC, b.id ASC`
	out := []BookSales{}
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

const purchaseRecordSelect = `SELECT p.id, p.user_id, u.email, p.book_id, b.title, p.quantity,
                                     p.amount_cents, p.session_id, p.status, p.created_at
                              FROM purchases p
                              JOIN users u ON u.id = p.user_id
                              JOIN books b ON b.id = p.book_id`

// ListPurchases returns one page of all purchases, newest first.
func (r *SalesRepo) ListPurchases(ctx context.Context, limit, offset int) ([]PurchaseRecord, error) {
	out := []PurchaseRecord{}
	err := r.db.SelectContext(ctx, &out,
		purchaseRecordSelect+" ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPurchasesForBook returns all purchases of one book, newest first.
func (r *SalesRepo) ListPurchasesForBook(ctx context.Context, bookID uint64) ([]PurchaseRecord, error) {
	out := []PurchaseRecord{}
	err := r.db.SelectContext(ctx, &out,
		purchaseRecordSelect+" WHERE p.book_id = ? ORDER BY p.created_at DESC, p.id DESC", bookID)
	if err != nil {
		return nil, err
	}
	return out, nil
}
