package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ebook-storefront/internal/handler"
	"github.com/iliyamo/ebook-storefront/internal/middleware"
	"github.com/iliyamo/ebook-storefront/internal/model"
)

// RegisterAdmin registers catalog management and sales reporting under
// /v1/admin.  All routes require the ADMIN role.
func RegisterAdmin(e *echo.Echo, b *handler.AdminBookHandler, s *handler.AdminSalesHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
		limit,
	)
	g.POST("/books", b.CreateBook)
	g.PUT("/books/:id", b.UpdateBook)
	g.DELETE("/books/:id", b.DeleteBook)
	g.GET("/books/:id/purchases", s.ListBookPurchases)

	g.GET("/purchases", s.ListPurchases)
	g.GET("/sales", s.Summary)
}
