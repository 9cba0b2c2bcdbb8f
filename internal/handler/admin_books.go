package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// AdminBookHandler manages the catalog.  Routes are mounted behind
// JWTAuth + RequireRole(ADMIN).
type AdminBookHandler struct {
	Books *repository.BookRepo
}

func NewAdminBookHandler(b *repository.BookRepo) *AdminBookHandler {
	return &AdminBookHandler{Books: b}
}

type bookReq struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Genre        string          `json:"genre"`
	Publisher    string          `json:"publisher"`
	ReleaseDate  string          `json:"release_date"` // YYYY-MM-DD, optional
	ContentRef   *string         `json:"content_ref"`
	ThumbnailRef *string         `json:"thumbnail_ref"`
	Authors      []string        `json:"authors"`
	Tags         []string        `json:"tags"`
}

var maxPrice = decimal.NewFromInt(100000)

// toInput validates the request and converts it to repository input.
func (r bookReq) toInput() (repository.BookInput, error) {
	in := repository.BookInput{
		Title:        strings.TrimSpace(r.Title),
		Description:  strings.TrimSpace(r.Description),
		Price:        r.Price,
		Genre:        strings.TrimSpace(r.Genre),
		Publisher:    strings.TrimSpace(r.Publisher),
		ContentRef:   trimmedOrNil(r.ContentRef),
		ThumbnailRef: trimmedOrNil(r.ThumbnailRef),
		Authors:      r.Authors,
		Tags:         r.Tags,
	}
	switch {
	case in.Title == "":
		return in, errors.New("title is required")
	case len(in.Title) > 255:
		return in, errors.New("title is too long")
	case in.Genre == "":
		return in, errors.New("genre is required")
	case in.Publisher == "":
		return in, errors.New("publisher is required")
	case !in.Price.IsPositive() || in.Price.GreaterThanOrEqual(maxPrice):
		return in, errors.New("price must be positive and below 100000")
	case !in.Price.Equal(in.Price.Round(2)):
		return in, errors.New("price must have at most two decimals")
	}
	if s := strings.TrimSpace(r.ReleaseDate); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return in, errors.New("release_date must be YYYY-MM-DD")
		}
		in.ReleaseDate = &t
	}
	return in, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CreateBook handles POST /v1/admin/books
func (h *AdminBookHandler) CreateBook(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	in, err := req.toInput()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if in.Authors == nil {
		in.Authors = []string{}
	}
	book, err := h.Books.Create(c.Request().Context(), in)
	if err != nil {
		return internalError(c, "create book failed", err)
	}
	log.WithField("book_id", book.ID).Info("admin: book created")
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook handles PUT /v1/admin/books/:id.  Omitted authors/tags keep
// the current sets.
func (h *AdminBookHandler) UpdateBook(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	in, err := req.toInput()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	book, err := h.Books.Update(c.Request().Context(), id, in)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "book not found")
	}
	if err != nil {
		return internalError(c, "update book failed", err)
	}
	return c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /v1/admin/books/:id.  Purchased books cannot be
// deleted.
func (h *AdminBookHandler) DeleteBook(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	err := h.Books.Delete(c.Request().Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "book not found")
	case errors.Is(err, repository.ErrConflict):
		return errorJSON(c, http.StatusConflict, "book has purchases and cannot be deleted")
	case err != nil:
		return internalError(c, "delete book failed", err)
	}
	log.WithField("book_id", id).Info("admin: book deleted")
	return c.NoContent(http.StatusNoContent)
}
