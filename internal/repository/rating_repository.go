package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ebook-storefront/internal/model"
)

// RatingRepo stores per-user book ratings and keeps books.average_rating in
// step with them.
type RatingRepo struct {
	db *sql.DB
}

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

// Upsert writes the user's rating for a book and recomputes the book's
// average in the same transaction.  The caller must have checked that
// the user owns the book.  Returns the new average.
func (r *RatingRepo) Upsert(ctx context.Context, userID, bookID uint64, rating uint8) (float64, error) {
	if rating < 1 || rating > 5 {
		return 0, errors.New("rating must be between 1 and 5")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (user_id, book_id, rating) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE rating = VALUES(rating)`,
		userID, bookID, rating)
	if err != nil {
		if isMySQLError(err, mysqlErrNoReferenced) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE books SET average_rating = (SELECT COALESCE(ROUND(AVG(rating), 2), 0) FROM ratings WHERE book_id = ?)
		 WHERE id = ?`, bookID, bookID)
	if err != nil {
		return 0, err
	}
	var avg float64
	if err := tx.QueryRowContext(ctx, "SELECT average_rating FROM books WHERE id = ?", bookID).Scan(&avg); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return avg, nil
}

// ListByBook returns all ratings for a book, newest first.
func (r *RatingRepo) ListByBook(ctx context.Context, bookID uint64) ([]model.Rating, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, book_id, rating, created_at, updated_at
		 FROM ratings WHERE book_id = ? ORDER BY updated_at DESC, id DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Rating{}
	for rows.Next() {
		var rt model.Rating
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.BookID, &rt.Rating, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// GetForUser returns the user's own rating of a book, or ErrNotFound.
func (r *RatingRepo) GetForUser(ctx context.Context, userID, bookID uint64) (*model.Rating, error) {
	var rt model.Rating
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, book_id, rating, created_at, updated_at
		 FROM ratings WHERE user_id = ? AND book_id = ?`, userID, bookID).
		Scan(&rt.ID, &rt.UserID, &rt.BookID, &rt.Rating, &rt.CreatedAt, &rt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}
