package report

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Lister reads stored reports.
type Lister interface {
	Recent(ctx context.Context, kind Kind, limit int) ([]StoredReport, error)
}

// Handler exposes stored reports over HTTP.
type Handler struct {
	store Lister
}

func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers:
//
//	GET /api/v1/deid/reports?kind=...&limit=...
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/deid/reports", h.List)
}

func (h *Handler) List(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		limit = n
	}

	reports, err := h.store.Recent(c.Request().Context(), Kind(c.QueryParam("kind")), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	if reports == nil {
		reports = []StoredReport{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   len(reports),
		"reports": reports,
	})
}
