package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// CatalogHandler serves the public, cacheable catalog endpoints.
type CatalogHandler struct {
	Books   *repository.BookRepo
	Tags    *repository.AuthorTagRepo
	Ratings *repository.RatingRepo
}

func NewCatalogHandler(b *repository.BookRepo, t *repository.AuthorTagRepo, r *repository.RatingRepo) *CatalogHandler {
	return &CatalogHandler{Books: b, Tags: t, Ratings: r}
}

var allowedSorts = map[string]bool{
	"title": true, "price": true, "release_date": true,
	"purchases_count": true, "average_rating": true, "created_at": true,
}

// ListBooks handles GET /v1/books?page=&limit=&sort=&order=&genre=&author=&tag=
func (h *CatalogHandler) ListBooks(c echo.Context) error {
	page, limit := pageParams(c)
	sort := strings.ToLower(strings.TrimSpace(c.QueryParam("sort")))
	if sort != "" && !allowedSorts[sort] {
		return errorJSON(c, http.StatusBadRequest, "invalid sort")
	}
	order := strings.ToLower(strings.TrimSpace(c.QueryParam("order")))
	if order != "" && order != "asc" && order != "desc" {
		return errorJSON(c, http.StatusBadRequest, "order must be asc or desc")
	}

	books, total, err := h.Books.List(c.Request().Context(), repository.BookFilter{
		Genre:  c.QueryParam("genre"),
		Author: c.QueryParam("author"),
		Tag:    c.QueryParam("tag"),
		Sort:   sort,
		Order:  order,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return internalError(c, "list books failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": books,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

// GetBook handles GET /v1/books/:id
func (h *CatalogHandler) GetBook(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	book, err := h.Books.GetBook(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "book not found")
	}
	if err != nil {
		return internalError(c, "load book failed", err)
	}
	return c.JSON(http.StatusOK, book)
}

// ListAuthors handles GET /v1/authors
func (h *CatalogHandler) ListAuthors(c echo.Context) error {
	authors, err := h.Tags.ListAuthors(c.Request().Context())
	if err != nil {
		return internalError(c, "list authors failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": authors})
}

// ListTags handles GET /v1/tags
func (h *CatalogHandler) ListTags(c echo.Context) error {
	tags, err := h.Tags.ListTags(c.Request().Context())
	if err != nil {
		return internalError(c, "list tags failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tags})
}

// ListRatings handles GET /v1/books/:id/ratings
func (h *CatalogHandler) ListRatings(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	ratings, err := h.Ratings.ListByBook(c.Request().Context(), id)
	if err != nil {
		return internalError(c, "list ratings failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": ratings})
}
