package hl7v2

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler provides HTTP endpoints for HL7v2 message parsing and lookup.
type Handler struct{}

// NewHandler creates a new HL7v2 handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers HL7v2 endpoints on the provided route group.
//
//	POST /api/v1/hl7v2/parse          - Parse HL7v2 message to JSON
//	POST /api/v1/hl7v2/query?id=...   - Resolve a component identifier
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7v2/parse", h.ParseMessage)
	g.POST("/hl7v2/query", h.Query)
}

// segmentJSON is the JSON representation of a parsed segment.
type segmentJSON struct {
	Name   string      `json:"name"`
	Fields []fieldJSON `json:"fields"`
}

// fieldJSON is the JSON representation of a parsed field.
type fieldJSON struct {
	ID         string          `json:"id"`
	Value      string          `json:"value"`
	Components []componentJSON `json:"components,omitempty"`
	Repeats    [][]string      `json:"repeats,omitempty"`
}

type componentJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

func toComponentJSON(c *Component) componentJSON {
	name := c.Name
	if name == c.ID {
		name = ""
	}
	return componentJSON{ID: c.ID, Name: name, Value: c.Value()}
}

// ParseMessage handles POST /api/v1/hl7v2/parse.
// It reads raw HL7v2 from the request body and returns parsed JSON.
func (h *Handler) ParseMessage(c echo.Context) error {
	msg, err := readMessage(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	// Build JSON response; Fields[0] is the segment name and is skipped.
	segments := make([]segmentJSON, len(msg.Segments))
	for i, seg := range msg.Segments {
		fields := make([]fieldJSON, 0, len(seg.Fields))
		for _, f := range seg.Fields[1:] {
			comps := make([]componentJSON, len(f.Components))
			for k, comp := range f.Components {
				comps[k] = toComponentJSON(comp)
			}
			fields = append(fields, fieldJSON{
				ID:         f.ID,
				Value:      f.Value,
				Components: comps,
				Repeats:    f.Repeats,
			})
		}
		segments[i] = segmentJSON{
			Name:   seg.Name,
			Fields: fields,
		}
	}

	result := map[string]interface{}{
		"type":         msg.Type,
		"controlId":    msg.ControlID,
		"version":      msg.Version,
		"timestamp":    msg.Timestamp.Format("2006-01-02T15:04:05Z"),
		"sendingApp":   msg.SendingApp,
		"sendingFac":   msg.SendingFac,
		"receivingApp": msg.ReceivingApp,
		"receivingFac": msg.ReceivingFac,
		"segments":     segments,
	}

	return c.JSON(http.StatusOK, result)
}

// Query handles POST /api/v1/hl7v2/query. The body is a raw HL7v2 message
// and the "id" query parameter an identifier such as "PID-5.1". An optional
// "value" parameter narrows the result to the first matching component
// ("NULL" and "!NULL" match empty and non-empty values).
func (h *Handler) Query(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "id query parameter is required",
		})
	}

	msg, err := readMessage(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	var found []*Component
	if match := c.QueryParam("value"); match != "" {
		comp, err := msg.FindByValue(id, match)
		if err != nil {
			return queryError(c, err)
		}
		if comp != nil {
			found = append(found, comp)
		}
	} else {
		found, err = msg.GetByID(id)
		if err != nil {
			return queryError(c, err)
		}
	}

	comps := make([]componentJSON, len(found))
	for i, comp := range found {
		comps[i] = toComponentJSON(comp)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":         id,
		"components": comps,
	})
}

func queryError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrMalformedIdentifier) {
		status = http.StatusBadRequest
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// readMessage reads the raw request body and parses it.
func readMessage(c echo.Context) (*Message, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	msg, err := Parse(body)
	if err != nil {
		return nil, errors.New("failed to parse HL7v2 message: " + err.Error())
	}
	return msg, nil
}
