package deid

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/report"
)

// Catalog is a GeneratorProvider that can list what it holds.
type Catalog interface {
	GeneratorProvider
	Names() []string
}

// Handler provides HTTP endpoints for de-identification.
type Handler struct {
	items    []*ConfigItem
	catalog  Catalog
	sink     report.Sink
	observer Observer
}

// NewHandler creates a handler that de-identifies with items. Every request
// gets its own copy of items; failures go to sink as well as to the response.
func NewHandler(items []*ConfigItem, catalog Catalog, sink report.Sink) *Handler {
	if sink == nil {
		sink = report.Nop{}
	}
	return &Handler{items: items, catalog: catalog, sink: sink}
}

// WithObserver sends the engine measurements of every request to obs.
func (h *Handler) WithObserver(obs Observer) *Handler {
	h.observer = obs
	return h
}

// RegisterRoutes registers de-identification endpoints on the provided group.
//
//	POST /api/v1/hl7v2/deidentify  - De-identify a raw HL7v2 message
//	POST /api/v1/hl7v2/scramble    - Replace every value with a placeholder
//	GET  /api/v1/deid/generators   - List registered generators
//	GET  /api/v1/deid/fields       - List the configured PHI fields
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7v2/deidentify", h.DeIdentify)
	g.POST("/hl7v2/scramble", h.Scramble)
	g.GET("/deid/generators", h.ListGenerators)
	g.GET("/deid/fields", h.ListFields)
}

type warningJSON struct {
	ID        string      `json:"id"`
	Kind      report.Kind `json:"kind"`
	Component string      `json:"componentId,omitempty"`
	Error     string      `json:"error"`
}

// DeIdentify handles POST /api/v1/hl7v2/deidentify. The response carries the
// rewritten message and every field-level warning raised while producing it.
func (h *Handler) DeIdentify(c echo.Context) error {
	msg, err := readMessage(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	mem := report.NewMemory()
	out, err := DeIdentifyObserved(msg, CloneItems(h.items), h.catalog, report.Multi(h.sink, mem), h.observer)

	warnings := make([]warningJSON, 0, mem.Len())
	for _, e := range mem.Entries() {
		w := warningJSON{ID: e.Handle.ID.String(), Kind: e.Handle.Kind, Error: e.Err.Error()}
		var fe *FieldError
		if errors.As(e.Err, &fe) {
			w.Component = fe.ID
		}
		warnings = append(warnings, w)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrAmbiguousIdentitySegment) || errors.Is(err, hl7v2.ErrMalformedIdentifier) {
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, map[string]interface{}{
			"error":    err.Error(),
			"warnings": warnings,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  out.InputString,
		"warnings": warnings,
	})
}

// Scramble handles POST /api/v1/hl7v2/scramble.
func (h *Handler) Scramble(c echo.Context) error {
	msg, err := readMessage(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	out, err := GenerateFrom(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": out.InputString})
}

// ListGenerators handles GET /api/v1/deid/generators.
func (h *Handler) ListGenerators(c echo.Context) error {
	names := []string{}
	if h.catalog != nil {
		names = append(names, h.catalog.Names()...)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":      len(names),
		"generators": names,
	})
}

// ListFields handles GET /api/v1/deid/fields.
func (h *Handler) ListFields(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":  len(h.items),
		"fields": h.items,
	})
}

func readMessage(c echo.Context) (*hl7v2.Message, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	msg, err := hl7v2.Parse(body)
	if err != nil {
		return nil, errors.New("failed to parse HL7v2 message: " + err.Error())
	}
	return msg, nil
}
