package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/ebook-storefront/internal/model"
)

// AuthorTagRepo manages the authors and tags dictionaries.  Names are
// unique; a name is upserted on first reference and never deleted.
type AuthorTagRepo struct {
	db *sql.DB
}

func NewAuthorTagRepo(db *sql.DB) *AuthorTagRepo { return &AuthorTagRepo{db: db} }

// ListAuthors returns all authors ordered by name.
func (r *AuthorTagRepo) ListAuthors(ctx context.Context) ([]model.Author, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM authors ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Author{}
	for rows.Next() {
		var a model.Author
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListTags returns all tags ordered by name.
func (r *AuthorTagRepo) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetBookAuthorsTx replaces the author links of a book with the given
// names, creating missing authors.
func (r *AuthorTagRepo) SetBookAuthorsTx(ctx context.Context, tx *sql.Tx, bookID uint64, names []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM book_authors WHERE book_id = ?", bookID); err != nil {
		return err
	}
	for _, name := range normalizeNames(names) {
		id, err := upsertNameTx(ctx, tx, "authors", name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO book_authors (book_id, author_id) VALUES (?, ?)", bookID, id); err != nil {
			return err
		}
	}
	return nil
}

// SetBookTagsTx replaces the tag links of a book with the given names,
// creating missing tags.
func (r *AuthorTagRepo) SetBookTagsTx(ctx context.Context, tx *sql.Tx, bookID uint64, names []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM book_tags WHERE book_id = ?", bookID); err != nil {
		return err
	}
	for _, name := range normalizeNames(names) {
		id, err := upsertNameTx(ctx, tx, "tags", name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO book_tags (book_id, tag_id) VALUES (?, ?)", bookID, id); err != nil {
			return err
		}
	}
	return nil
}

// upsertNameTx inserts name into table (authors or tags) or finds the
// existing row.  LAST_INSERT_ID(id) makes LastInsertId report the existing
// id on the duplicate path, so no second SELECT is needed.
func upsertNameTx(ctx context.Context, tx *sql.Tx, table, name string) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO "+table+" (name) VALUES (?) ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)", name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// normalizeNames trims, drops blanks and removes case-insensitive duplicates
// while keeping first-seen order.
func normalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
