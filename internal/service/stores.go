package service

import (
	"context"

	"github.com/iliyamo/ebook-storefront/internal/model"
	"github.com/iliyamo/ebook-storefront/internal/queue"
)

// CartStore is the slice of the cart repository checkout and fulfillment
// need.
type CartStore interface {
	GetCartWithItems(ctx context.Context, userID uint64) (*model.Cart, error)
	ClearCart(ctx context.Context, userID uint64) error
	RemoveItems(ctx context.Context, userID uint64, bookIDs []uint64) error
}

// CatalogStore resolves current book data.  A missing book is reported as
// repository.ErrNotFound.
type CatalogStore interface {
	GetBook(ctx context.Context, id uint64) (*model.Book, error)
}

// PurchaseStore records purchases idempotently per (session, book).
type PurchaseStore interface {
	CreatePurchaseIfAbsent(ctx context.Context, p *model.Purchase) error
}

// EventPublisher announces completed purchases.  Publishing is best effort.
type EventPublisher interface {
	PublishPurchaseCompleted(ctx context.Context, event queue.PurchaseCompletedEvent) error
}
