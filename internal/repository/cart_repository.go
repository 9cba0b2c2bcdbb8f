package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ebook-storefront/internal/model"
)

// CartRepo stores one cart per user and its items.  All mutations are
// single statements keyed by the user's cart, so concurrent requests for
// the same user never lose updates.
type CartRepo struct {
	db *sql.DB
}

func NewCartRepo(db *sql.DB) *CartRepo { return &CartRepo{db: db} }

// CartLine is a cart item joined with the book's current title and price,
// as shown to the customer.
type CartLine struct {
	BookID    uint64          `json:"book_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  uint32          `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// GetCartWithItems returns the user's cart with its items.  A user without
// a cart gets an empty cart value with ID zero.
func (r *CartRepo) GetCartWithItems(ctx context.Context, userID uint64) (*model.Cart, error) {
	cart := &model.Cart{UserID: userID, Items: []model.CartItem{}}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM carts WHERE user_id = ?", userID).Scan(&cart.ID, &cart.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cart, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, cart_id, book_id, quantity FROM cart_items WHERE cart_id = ? ORDER BY id", cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.BookID, &it.Quantity); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, it)
	}
	return cart, rows.Err()
}

// ListLines returns the user's cart items with current book data.
func (r *CartRepo) ListLines(ctx context.Context, userID uint64) ([]CartLine, error) {
	const q = `SELECT ci.book_id, b.title, b.price, ci.quantity
               FROM cart_items ci
               JOIN carts c ON c.id = ci.cart_id
               JOIN books b ON b.id = ci.book_id
               WHERE c.user_id = ?
               ORDER BY ci.id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []CartLine{}
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(&l.BookID, &l.Title, &l.Price, &l.Quantity); err != nil {
			return nil, err
		}
		l.LineTotal = l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// AddItem adds quantity copies of a book to the user's cart, creating the
// cart on first use.  Re-adding a book increments its quantity in the same
// statement.  An unknown book yields ErrNotFound.
func (r *CartRepo) AddItem(ctx context.Context, userID, bookID uint64, quantity uint32) error {
	if quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO carts (user_id) VALUES (?) ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)", userID)
	if err != nil {
		if isMySQLError(err, mysqlErrNoReferenced) {
			return ErrReferenceMissing
		}
		return err
	}
	cartID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, book_id, quantity) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		cartID, bookID, quantity)
	if err != nil {
		if isMySQLError(err, mysqlErrNoReferenced) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RemoveItem deletes one book from the user's cart.  ErrNotFound when the
// book was not in the cart.
func (r *CartRepo) RemoveItem(ctx context.Context, userID, bookID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE ci FROM cart_items ci JOIN carts c ON c.id = ci.cart_id
		 WHERE c.user_id = ? AND ci.book_id = ?`, userID, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveItems deletes the given books from the user's cart in one
// statement.  Books that are not in the cart are ignored.
func (r *CartRepo) RemoveItems(ctx context.Context, userID uint64, bookIDs []uint64) error {
	if len(bookIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(bookIDs)+1)
	args = append(args, userID)
	for _, id := range bookIDs {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE ci FROM cart_items ci JOIN carts c ON c.id = ci.cart_id
		 WHERE c.user_id = ? AND ci.book_id IN (`+placeholders(len(bookIDs))+`)`, args...)
	return err
}

// ClearCart deletes every item of the user's cart in one statement.  The
// cart row itself is kept.  Clearing an empty or missing cart is a no-op.
func (r *CartRepo) ClearCart(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE ci FROM cart_items ci JOIN carts c ON c.id = ci.cart_id WHERE c.user_id = ?`, userID)
	return err
}
