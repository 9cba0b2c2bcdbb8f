package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// LibraryHandler serves what a customer has bought.
type LibraryHandler struct {
	Purchases *repository.PurchaseRepo
	Ratings   *repository.RatingRepo
}

func NewLibraryHandler(p *repository.PurchaseRepo, r *repository.RatingRepo) *LibraryHandler {
	return &LibraryHandler{Purchases: p, Ratings: r}
}

// PurchaseHistory handles GET /v1/me/purchases
func (h *LibraryHandler) PurchaseHistory(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	items, err := h.Purchases.ListByUser(c.Request().Context(), uid)
	if err != nil {
		return internalError(c, "load purchases failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// MyBooks handles GET /v1/me/books
func (h *LibraryHandler) MyBooks(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	books, err := h.Purchases.ListOwnedBooks(c.Request().Context(), uid)
	if err != nil {
		return internalError(c, "load library failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": books})
}

// ReadBook handles GET /v1/me/books/:id/content
func (h *LibraryHandler) ReadBook(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	ref, err := h.Purchases.GetContentRefForOwner(c.Request().Context(), uid, bookID)
	switch {
	case errors.Is(err, repository.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, "book not purchased")
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "content not found")
	case err != nil:
		return internalError(c, "load content failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"book_id": bookID, "content_ref": ref})
}

type rateReq struct {
	Rating int `json:"rating"`
}

// RateBook handles PUT /v1/me/books/:id/rating.  Only owners may rate;
// re-rating overwrites.
func (h *LibraryHandler) RateBook(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	var req rateReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return errorJSON(c, http.StatusBadRequest, "rating must be between 1 and 5")
	}

	ctx := c.Request().Context()
	owned, err := h.Purchases.HasCompletedPurchase(ctx, uid, bookID)
	if err != nil {
		return internalError(c, "check purchase failed", err)
	}
	if !owned {
		return errorJSON(c, http.StatusForbidden, "only buyers can rate a book")
	}
	avg, err := h.Ratings.Upsert(ctx, uid, bookID, uint8(req.Rating))
	if err != nil {
		return internalError(c, "save rating failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"book_id":        bookID,
		"rating":         req.Rating,
		"average_rating": avg,
	})
}
