package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// AdminSalesHandler exposes purchase reporting to administrators.
type AdminSalesHandler struct {
	Sales *repository.SalesRepo
}

func NewAdminSalesHandler(s *repository.SalesRepo) *AdminSalesHandler {
	return &AdminSalesHandler{Sales: s}
}

// Summary handles GET /v1/admin/sales
func (h *AdminSalesHandler) Summary(c echo.Context) error {
	rows, err := h.Sales.SalesSummary(c.Request().Context())
	if err != nil {
		return internalError(c, "sales summary failed", err)
	}
	var units, revenue int64
	for _, r := range rows {
		units += r.UnitsSold
		revenue += r.RevenueCents
	}
	return c.JSON(http.StatusOK, echo.Map{
		"books":               rows,
		"total_units":         units,
		"total_revenue_cents": revenue,
	})
}

// ListPurchases handles GET /v1/admin/purchases?page=&limit=
func (h *AdminSalesHandler) ListPurchases(c echo.Context) error {
	page, limit := pageParams(c)
	rows, err := h.Sales.ListPurchases(c.Request().Context(), limit, (page-1)*limit)
	if err != nil {
		return internalError(c, "list purchases failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rows, "page": page, "limit": limit})
}

// ListBookPurchases handles GET /v1/admin/books/:id/purchases
func (h *AdminSalesHandler) ListBookPurchases(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	rows, err := h.Sales.ListPurchasesForBook(c.Request().Context(), id)
	if err != nil {
		return internalError(c, "list purchases failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rows})
}
