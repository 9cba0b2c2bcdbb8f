package model

import "time"

// PurchaseStatusCompleted is the only status a purchase is ever written with.
const PurchaseStatusCompleted = "completed"

// Purchase records that a user owns a book, created once per
// (session_id, book_id) by the fulfillment path.
type Purchase struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"user_id"`
	BookID      uint64    `json:"book_id"`
	Quantity    uint32    `json:"quantity"`
	AmountCents int64     `json:"amount_cents"`
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
