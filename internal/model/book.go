package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is a catalog entry.  Price is held as a decimal with two places so
// conversion to minor units never goes through a float.
type Book struct {
	ID             uint64          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Genre          string          `json:"genre"`
	Publisher      string          `json:"publisher"`
	ReleaseDate    *time.Time      `json:"release_date,omitempty"`
	ContentRef     *string         `json:"-"`
	ThumbnailRef   *string         `json:"thumbnail_ref,omitempty"`
	PurchasesCount uint32          `json:"purchases_count"`
	AverageRating  decimal.Decimal `json:"average_rating"`
	Authors        []string        `json:"authors"`
	Tags           []string        `json:"tags"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// UnitAmountCents converts the price to integer minor units, rounding half
// away from zero.
func (b *Book) UnitAmountCents() int64 {
	return b.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Author is a row in `authors`.
type Author struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Tag is a row in `tags`.
type Tag struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Rating is one user's 1..5 score for a book.
type Rating struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	BookID    uint64    `json:"book_id"`
	Rating    uint8     `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
