package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ebook-storefront/internal/model"
)

// BookRepo provides catalog reads and admin writes for books.  Authors and
// tags are stored in their own tables and linked through join tables;
// see AuthorTagRepo for the upsert helpers shared with this repo.
type BookRepo struct {
	db   *sql.DB
	tags *AuthorTagRepo
}

// NewBookRepo returns a new BookRepo bound to the given database.
func NewBookRepo(db *sql.DB) *BookRepo {
	return &BookRepo{db: db, tags: NewAuthorTagRepo(db)}
}

// BookFilter narrows and orders a catalog listing.  Zero values mean "no
// filter"; Sort must be one of the keys of bookSortColumns.
type BookFilter struct {
	Genre  string
	Author string
	Tag    string
	Sort   string
	Order  string
	Page   int
	Limit  int
}

// BookInput carries the writable fields of a book.  On update a nil
// Authors or Tags slice leaves the existing set untouched; a non-nil slice
// replaces it.
type BookInput struct {
	Title        string
	Description  string
	Price        decimal.Decimal
	Genre        string
	Publisher    string
	ReleaseDate  *time.Time
	ContentRef   *string
	ThumbnailRef *string
	Authors      []string
	Tags         []string
}

// Whitelisted sort keys mapped to SQL columns.  User input never reaches
// the ORDER BY clause directly.
var bookSortColumns = map[string]string{
	"title":           "b.title",
	"price":           "b.price",
	"release_date":    "b.release_date",
	"purchases_count": "b.purchases_count",
	"average_rating":  "b.average_rating",
	"created_at":      "b.created_at",
}

const bookColumns = `b.id, b.title, b.description, b.price, b.genre, b.publisher, b.release_date,
	b.content_ref, b.thumbnail_ref, b.purchases_count, b.average_rating, b.created_at, b.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row rowScanner) (*model.Book, error) {
	var (
		b         model.Book
		release   sql.NullTime
		content   sql.NullString
		thumbnail sql.NullString
	)
	err := row.Scan(&b.ID, &b.Title, &b.Description, &b.Price, &b.Genre, &b.Publisher, &release,
		&content, &thumbnail, &b.PurchasesCount, &b.AverageRating, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if release.Valid {
		t := release.Time
		b.ReleaseDate = &t
	}
	if content.Valid {
		s := content.String
		b.ContentRef = &s
	}
	if thumbnail.Valid {
		s := thumbnail.String
		b.ThumbnailRef = &s
	}
	b.Authors = []string{}
	b.Tags = []string{}
	return &b, nil
}

// List returns one page of books matching the filter along with the total
// number of matches.  Authors and tags are loaded for the returned page.
func (r *BookRepo) List(ctx context.Context, f BookFilter) ([]model.Book, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if g := strings.TrimSpace(f.Genre); g != "" {
		where = append(where, "b.genre = ?")
		args = append(args, g)
	}
	if a := strings.TrimSpace(f.Author); a != "" {
		where = append(where, `EXISTS (SELECT 1 FROM book_authors ba JOIN authors a ON a.id = ba.author_id
			WHERE ba.book_id = b.id AND a.name = ?)`)
		args = append(args, a)
	}
	if t := strings.TrimSpace(f.Tag); t != "" {
		where = append(where, `EXISTS (SELECT 1 FROM book_tags bt JOIN tags t ON t.id = bt.tag_id
			WHERE bt.book_id = b.id AND t.name = ?)`)
		args = append(args, t)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books b"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := bookSortColumns[f.Sort]
	if !ok {
		col = "b.id"
	}
	dir := "ASC"
	if strings.EqualFold(f.Order, "desc") {
		dir = "DESC"
	}
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := "SELECT " + bookColumns + " FROM books b" + whereSQL +
		" ORDER BY " + col + " " + dir + ", b.id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	books := []model.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachNames(ctx, books); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// GetBook returns a single book with its authors and tags.  A missing book
// yields ErrNotFound.
func (r *BookRepo) GetBook(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books b WHERE b.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	one := []model.Book{*b}
	if err := r.attachNames(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// attachNames fills Authors and Tags for the given books with two IN
// queries instead of one query per book.
func (r *BookRepo) attachNames(ctx context.Context, books []model.Book) error {
	if len(books) == 0 {
		return nil
	}
	idx := make(map[uint64]int, len(books))
	ids := make([]interface{}, 0, len(books))
	for i := range books {
		idx[books[i].ID] = i
		ids = append(ids, books[i].ID)
	}
	in := placeholders(len(ids))

	load := func(q string, assign func(b *model.Book, name string)) error {
		rows, err := r.db.QueryContext(ctx, q, ids...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				bookID uint64
				name   string
			)
			if err := rows.Scan(&bookID, &name); err != nil {
				return err
			}
			if i, ok := idx[bookID]; ok {
				assign(&books[i], name)
			}
		}
		return rows.Err()
	}

	if err := load(`SELECT ba.book_id, a.name FROM book_authors ba JOIN authors a ON a.id = ba.author_id
		WHERE ba.book_id IN (`+in+`) ORDER BY a.name`,
		func(b *model.Book, name string) { b.Authors = append(b.Authors, name) }); err != nil {
		return err
	}
	return load(`SELECT bt.book_id, t.name FROM book_tags bt JOIN tags t ON t.id = bt.tag_id
		WHERE bt.book_id IN (`+in+`) ORDER BY t.name`,
		func(b *model.Book, name string) { b.Tags = append(b.Tags, name) })
}

// Create inserts a book together with its author and tag links in one
// transaction and returns the stored row.
func (r *BookRepo) Create(ctx context.Context, in BookInput) (*model.Book, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO books
		(title, description, price, genre, publisher, release_date, content_ref, thumbnail_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Description, in.Price, in.Genre, in.Publisher, in.ReleaseDate, in.ContentRef, in.ThumbnailRef)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := r.tags.SetBookAuthorsTx(ctx, tx, uint64(id), in.Authors); err != nil {
		return nil, err
	}
	if err := r.tags.SetBookTagsTx(ctx, tx, uint64(id), in.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r.GetBook(ctx, uint64(id))
}

// Update overwrites the scalar fields of a book and, when provided,
// replaces its author and tag sets.
func (r *BookRepo) Update(ctx context.Context, id uint64, in BookInput) (*model.Book, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the row so concurrent updates of the same book serialize.
	var exists uint64
	err = tx.QueryRowContext(ctx, "SELECT id FROM books WHERE id = ? FOR UPDATE", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE books SET title = ?, description = ?, price = ?, genre = ?,
		publisher = ?, release_date = ?, content_ref = ?, thumbnail_ref = ? WHERE id = ?`,
		in.Title, in.Description, in.Price, in.Genre, in.Publisher, in.ReleaseDate, in.ContentRef, in.ThumbnailRef, id)
	if err != nil {
		return nil, err
	}
	if in.Authors != nil {
		if err := r.tags.SetBookAuthorsTx(ctx, tx, id, in.Authors); err != nil {
			return nil, err
		}
	}
	if in.Tags != nil {
		if err := r.tags.SetBookTagsTx(ctx, tx, id, in.Tags); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r.GetBook(ctx, id)
}

// Delete removes a book.  Books that have purchases are protected by a
// foreign key and yield ErrConflict.
func (r *BookRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		if isMySQLError(err, mysqlErrRowReferenced) {
			return ErrConflict
		}
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

// IncrementPurchaseCount bumps the monotonic purchase counter by one.
func (r *BookRepo) IncrementPurchaseCount(ctx context.Context, id uint64) error {
	return incrementPurchaseCount(ctx, r.db, id)
}

// IncrementPurchaseCountTx is IncrementPurchaseCount inside an existing
// transaction.
func (r *BookRepo) IncrementPurchaseCountTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return incrementPurchaseCount(ctx, tx, id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func incrementPurchaseCount(ctx context.Context, ex execer, id uint64) error {
	res, err := ex.ExecContext(ctx, "UPDATE books SET purchases_count = purchases_count + 1 WHERE id = ?", id)
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

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
