package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ebook-storefront/internal/handler"
	"github.com/iliyamo/ebook-storefront/internal/middleware"
	"github.com/iliyamo/ebook-storefront/internal/model"
)

// CustomerHandlers groups the handlers behind a customer login.
type CustomerHandlers struct {
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Library  *handler.LibraryHandler
}

// RegisterCustomer registers cart, checkout and library endpoints.  Admins
// may shop too, so both roles are accepted.
func RegisterCustomer(e *echo.Echo, h CustomerHandlers, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
		limit,
	)
	g.GET("/cart", h.Cart.GetCart)
	g.POST("/cart/items", h.Cart.AddItem)
	g.DELETE("/cart/items/:book_id", h.Cart.RemoveItem)

	g.POST("/checkout", h.Checkout.Checkout)

	g.GET("/me/purchases", h.Library.PurchaseHistory)
	g.GET("/me/books", h.Library.MyBooks)
	g.GET("/me/books/:id/content", h.Library.ReadBook)
	g.PUT("/me/books/:id/rating", h.Library.RateBook)
}
