package model

import "time"

// Cart is the per-user shopping cart.  Exactly one cart exists per user;
// it is created lazily on first add and never deleted, only emptied.
type Cart struct {
	ID        uint64     `json:"id"`
	UserID    uint64     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
}

// CartItem is a (cart, book) line with quantity >= 1.
type CartItem struct {
	ID       uint64 `json:"id"`
	CartID   uint64 `json:"cart_id"`
	BookID   uint64 `json:"book_id"`
	Quantity uint32 `json:"quantity"`
}

// IsEmpty reports whether the cart is missing or has no items.
func (c *Cart) IsEmpty() bool { return c == nil || len(c.Items) == 0 }
