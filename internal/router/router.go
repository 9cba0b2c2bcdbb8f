package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/ebook-storefront/internal/handler"
	"github.com/iliyamo/ebook-storefront/internal/metrics"
	"github.com/iliyamo/ebook-storefront/internal/middleware"
)

// New builds an Echo instance with the global middleware chain: panic
// recovery, request ids and request logging.
func New(m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(m))
	return e
}

// RegisterRoutes registers the operational endpoints that sit outside /v1.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// RegisterAuth registers authentication routes.  Register, login, refresh
// and logout are open; /v1/me requires an access token.  /refresh rotates
// the refresh token while /refresh-access keeps it.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, limit, middleware.JWTAuth(jwtSecret))
}
