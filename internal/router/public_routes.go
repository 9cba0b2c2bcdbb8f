package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ebook-storefront/internal/handler"
)

// RegisterPublic registers the unauthenticated catalog.  cache wraps every
// route; it only stores successful GET responses.
func RegisterPublic(e *echo.Echo, h *handler.CatalogHandler, limit, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", limit, cache)
	g.GET("/books", h.ListBooks)
	g.GET("/books/:id", h.GetBook)
	g.GET("/books/:id/ratings", h.ListRatings)
	g.GET("/authors", h.ListAuthors)
	g.GET("/tags", h.ListTags)
}

// RegisterWebhooks registers payment processor callbacks.  They carry no JWT
// and are not rate limited: the processor retries on any failure.
func RegisterWebhooks(e *echo.Echo, h *handler.CheckoutHandler) {
	e.POST("/v1/webhooks/stripe", h.StripeWebhook)
}
