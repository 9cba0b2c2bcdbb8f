// Package queue defines the messages exchanged over RabbitMQ together with
// their publisher and the background consumer.
package queue

// PurchaseQueueName is the durable queue purchase events are routed to.
const PurchaseQueueName = "purchase.completed"

// PurchaseCompletedEvent is published after a payment webhook recorded at
// least one new purchase.  It carries enough for downstream consumers to
// log, notify or run analytics without reading the primary database.
type PurchaseCompletedEvent struct {
	EventID     string          `json:"event_id"`
	SessionID   string          `json:"session_id"`
	UserID      uint64          `json:"user_id"`
	Items       []PurchasedItem `json:"items"`
	AmountTotal int64           `json:"amount_total_cents"`
	CompletedAt string          `json:"completed_at"`
}

// PurchasedItem is one newly recorded purchase inside the event.
type PurchasedItem struct {
	BookID      uint64 `json:"book_id"`
	Quantity    uint32 `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
}
