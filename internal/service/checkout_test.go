package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ebook-storefront/internal/metrics"
	"github.com/iliyamo/ebook-storefront/internal/payment"
)

const userU = uint64(42)

func setupCheckout(t *testing.T) (*CheckoutService, *memStore, *fakeGateway) {
	t.Helper()
	store := newMemStore()
	gw := &fakeGateway{}
	svc := NewCheckoutService(store, store, gw, CheckoutOptions{
		Currency:       "usd",
		SuccessURL:     "http://shop/success",
		CancelURL:      "http://shop/cancel",
		GatewayTimeout: time.Second,
	}, metrics.New())
	return svc, store, gw
}

func TestBeginCheckout_BuildsLineItemsFromCart(t *testing.T) {
	svc, store, gw := setupCheckout(t)
	store.addBook(1, "Book A", "5.00")
	store.addBook(2, "Book B", "10.00")
	store.addToCart(userU, 1, 2)
	store.addToCart(userU, 2, 1)

	sess, err := svc.BeginCheckout(context.Background(), userU)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.SessionID)
	assert.Equal(t, "https://pay.example/cs_test_1", sess.URL)

	req := gw.lastRequest()
	require.Len(t, req.LineItems, 2)
	assert.Equal(t, payment.LineItem{Name: "Book A", UnitAmountCents: 500, Quantity: 2}, req.LineItems[0])
	assert.Equal(t, payment.LineItem{Name: "Book B", UnitAmountCents: 1000, Quantity: 1}, req.LineItems[1])
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "http://shop/success", req.SuccessURL)
	assert.Equal(t, "http://shop/cancel", req.CancelURL)

	var total int64
	for _, li := range req.LineItems {
		total += li.UnitAmountCents * li.Quantity
	}
	assert.Equal(t, int64(2000), total)

	meta, err := DecodeMetadata(req.Metadata)
	require.NoError(t, err)
	assert.Equal(t, userU, meta.UserID)
	assert.Equal(t, []MetadataItem{{BookID: 1, Quantity: 2}, {BookID: 2, Quantity: 1}}, meta.Items)

	// Checkout alone never touches the cart.
	assert.Equal(t, 2, store.cartLen(userU))
}

func TestBeginCheckout_UsesPriceAtCheckoutTime(t *testing.T) {
	svc, store, gw := setupCheckout(t)
	store.addBook(1, "Book A", "5.00")
	store.addToCart(userU, 1, 1)

	// Price changes after the item was added.
	store.addBook(1, "Book A", "7.49")

	_, err := svc.BeginCheckout(context.Background(), userU)
	require.NoError(t, err)
	assert.Equal(t, int64(749), gw.lastRequest().LineItems[0].UnitAmountCents)
}

func TestBeginCheckout_RoundsHalfAwayFromZero(t *testing.T) {
	svc, store, gw := setupCheckout(t)
	store.addBook(1, "Odd price", "4.995")
	store.addToCart(userU, 1, 1)

	_, err := svc.BeginCheckout(context.Background(), userU)
	require.NoError(t, err)
	assert.Equal(t, int64(500), gw.lastRequest().LineItems[0].UnitAmountCents)
}

func TestBeginCheckout_EmptyCart(t *testing.T) {
	svc, _, gw := setupCheckout(t)

	_, err := svc.BeginCheckout(context.Background(), userU)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, gw.sessions, "no session may be created for an empty cart")
}

func TestBeginCheckout_BookRemovedFromCatalog(t *testing.T) {
	svc, store, gw := setupCheckout(t)
	store.addBook(1, "Book A", "5.00")
	store.addToCart(userU, 1, 1)
	store.addToCart(userU, 99, 1)

	_, err := svc.BeginCheckout(context.Background(), userU)
	assert.ErrorIs(t, err, ErrBookUnavailable)
	assert.Contains(t, err.Error(), "book 99")
	assert.Zero(t, gw.sessions)
}

func TestBeginCheckout_CartTooLarge(t *testing.T) {
	svc, store, gw := setupCheckout(t)
	for i := 0; i < 40; i++ {
		id := uint64(1000000 + i)
		store.addBook(id, fmt.Sprintf("Book %d", i), "1.00")
		store.addToCart(userU, id, 1)
	}

	_, err := svc.BeginCheckout(context.Background(), userU)
	assert.ErrorIs(t, err, ErrCartTooLarge)
	assert.Zero(t, gw.sessions)
}

func TestBeginCheckout_GatewayTimeout(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{block: true}
	svc := NewCheckoutService(store, store, gw, CheckoutOptions{GatewayTimeout: 20 * time.Millisecond}, nil)
	store.addBook(1, "Book A", "5.00")
	store.addToCart(userU, 1, 1)

	_, err := svc.BeginCheckout(context.Background(), userU)
	assert.ErrorIs(t, err, ErrGatewayTimeout)
	assert.Equal(t, 1, store.cartLen(userU))
}

func TestBeginCheckout_GatewayFailure(t *testing.T) {
	svc, store, gw := setupCheckout(t)
	declined := errors.New("card_declined")
	gw.createErr = declined
	store.addBook(1, "Book A", "5.00")
	store.addToCart(userU, 1, 1)

	_, err := svc.BeginCheckout(context.Background(), userU)
	assert.ErrorIs(t, err, ErrGatewayFailure)
	assert.ErrorIs(t, err, declined)
	assert.NotErrorIs(t, err, ErrGatewayTimeout)
}

func TestBeginCheckout_StoreFailure(t *testing.T) {
	svc, store, _ := setupCheckout(t)
	refused := errors.New("connection refused")
	store.getCartErr = refused

	_, err := svc.BeginCheckout(context.Background(), userU)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, refused)
}

func TestBeginCheckout_AbandonedSessionLeavesCart(t *testing.T) {
	svc, store, _ := setupCheckout(t)
	store.addBook(1, "Book A", "5.00")
	store.addToCart(userU, 1, 3)

	_, err := svc.BeginCheckout(context.Background(), userU)
	require.NoError(t, err)
	// No completion event ever arrives.
	cart, err := store.GetCartWithItems(context.Background(), userU)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, uint32(3), cart.Items[0].Quantity)
	assert.Zero(t, store.purchaseCount())
}
