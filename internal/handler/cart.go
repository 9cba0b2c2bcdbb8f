package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// CartHandler manages the authenticated user's cart.
type CartHandler struct {
	Carts *repository.CartRepo
}

func NewCartHandler(c *repository.CartRepo) *CartHandler { return &CartHandler{Carts: c} }

const maxCartQuantity = 100

type addItemReq struct {
	BookID   uint64 `json:"book_id"`
	Quantity uint32 `json:"quantity"`
}

// GetCart handles GET /v1/cart.  Lines show the book's current price.
func (h *CartHandler) GetCart(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lines, err := h.Carts.ListLines(ctx, uid)
	if err != nil {
		return internalError(c, "load cart failed", err)
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": lines,
		"total": total.StringFixed(2),
	})
}

// AddItem handles POST /v1/cart/items.  Quantity defaults to 1; re-adding a
// book increments its quantity.
func (h *CartHandler) AddItem(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	var req addItemReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	if req.BookID == 0 {
		return errorJSON(c, http.StatusBadRequest, "book_id is required")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity > maxCartQuantity {
		return errorJSON(c, http.StatusBadRequest, "quantity is too large")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err = h.Carts.AddItem(ctx, uid, req.BookID, req.Quantity)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "book not found")
	}
	if err != nil {
		return internalError(c, "add to cart failed", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"book_id": req.BookID, "added": req.Quantity})
}

// RemoveItem handles DELETE /v1/cart/items/:book_id
func (h *CartHandler) RemoveItem(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	bookID, ok := parseIDParam(c, "book_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid book_id")
	}
	err = h.Carts.RemoveItem(c.Request().Context(), uid, bookID)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "item not in cart")
	}
	if err != nil {
		return internalError(c, "remove from cart failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}
