package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/ebook-storefront/internal/model"
	"github.com/iliyamo/ebook-storefront/internal/payment"
	"github.com/iliyamo/ebook-storefront/internal/queue"
	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// memStore is an in-memory CartStore, CatalogStore and PurchaseStore with
// the same idempotency contract as the MySQL repositories.
type memStore struct {
	mu        sync.Mutex
	books     map[uint64]*model.Book
	carts     map[uint64][]model.CartItem
	purchases map[string]model.Purchase

	getCartErr error
	clearErr   error
	createErr  map[uint64]error
	nextID     uint64
}

func newMemStore() *memStore {
	return &memStore{
		books:     map[uint64]*model.Book{},
		carts:     map[uint64][]model.CartItem{},
		purchases: map[string]model.Purchase{},
		createErr: map[uint64]error{},
	}
}

func (s *memStore) addBook(id uint64, title, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[id] = &model.Book{ID: id, Title: title, Price: decimal.RequireFromString(price)}
}

func (s *memStore) addToCart(userID, bookID uint64, qty uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.carts[userID] {
		if s.carts[userID][i].BookID == bookID {
			s.carts[userID][i].Quantity += qty
			return
		}
	}
	s.carts[userID] = append(s.carts[userID], model.CartItem{BookID: bookID, Quantity: qty})
}

func (s *memStore) GetCartWithItems(_ context.Context, userID uint64) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getCartErr != nil {
		return nil, s.getCartErr
	}
	items := append([]model.CartItem{}, s.carts[userID]...)
	return &model.Cart{UserID: userID, Items: items}, nil
}

func (s *memStore) ClearCart(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	delete(s.carts, userID)
	return nil
}

func (s *memStore) RemoveItems(_ context.Context, userID uint64, bookIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	drop := make(map[uint64]bool, len(bookIDs))
	for _, id := range bookIDs {
		drop[id] = true
	}
	kept := s.carts[userID][:0]
	for _, it := range s.carts[userID] {
		if !drop[it.BookID] {
			kept = append(kept, it)
		}
	}
	s.carts[userID] = kept
	return nil
}

func (s *memStore) GetBook(_ context.Context, id uint64) (*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) CreatePurchaseIfAbsent(_ context.Context, p *model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[p.BookID]; err != nil {
		return err
	}
	key := fmt.Sprintf("%s|%d", p.SessionID, p.BookID)
	if _, ok := s.purchases[key]; ok {
		return repository.ErrPurchaseExists
	}
	b, ok := s.books[p.BookID]
	if !ok {
		return repository.ErrReferenceMissing
	}
	s.nextID++
	p.ID = s.nextID
	s.purchases[key] = *p
	b.PurchasesCount++
	return nil
}

func (s *memStore) purchase(sessionID string, bookID uint64) (model.Purchase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[fmt.Sprintf("%s|%d", sessionID, bookID)]
	return p, ok
}

func (s *memStore) purchaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.purchases)
}

func (s *memStore) cartLen(userID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[userID])
}

func (s *memStore) purchasesCount(bookID uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[bookID].PurchasesCount
}

const validSignature = "t=1,v1=valid"

// fakeGateway records session requests and treats a payload as trusted
// when it carries validSignature.  Payloads are JSON-encoded payment.Event
// values.
type fakeGateway struct {
	mu        sync.Mutex
	requests  []payment.SessionRequest
	createErr error
	block     bool
	sessions  int
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.sessions++
	n := g.sessions
	block, err := g.block, g.createErr
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("cs_test_%d", n)
	return &payment.Session{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) VerifyEvent(payload []byte, signature string) (*payment.Event, error) {
	if signature != validSignature {
		return nil, payment.ErrSignature
	}
	var evt payment.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %w", payment.ErrMalformed, err)
	}
	return &evt, nil
}

func (g *fakeGateway) lastRequest() payment.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishPurchaseCompleted(ctx context.Context, event queue.PurchaseCompletedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
