// Package websocket streams de-identification reports to connected clients.
// Clients subscribe to report kinds and receive an event for every matching
// failure as it is reported.
package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7deid/internal/platform/report"
)

// AllKinds subscribes a client to every report kind.
const AllKinds = "*"

// Event is the JSON payload sent for one report.
type Event struct {
	Type        string    `json:"type"`
	ReportID    string    `json:"reportId"`
	Kind        string    `json:"kind"`
	ComponentID string    `json:"componentId,omitempty"`
	Generator   string    `json:"generator,omitempty"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Kinds  []string `json:"kinds"`
}

// Client is one connected stream consumer.
type Client struct {
	ID   string
	Send chan []byte

	kinds map[string]bool
}

// NewClient returns a client subscribed to kinds with a send buffer of size.
func NewClient(size int, kinds ...string) *Client {
	c := &Client{ID: uuid.NewString(), Send: make(chan []byte, size), kinds: make(map[string]bool)}
	for _, k := range kinds {
		c.kinds[k] = true
	}
	return c
}

// Hub tracks connected clients and fans reports out to them. It implements
// report.Sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "report-stream").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Unregister removes client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, kinds []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range kinds {
		client.kinds[k] = true
	}
}

func (h *Hub) Unsubscribe(client *Client, kinds []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range kinds {
		delete(client.kinds, k)
	}
}

// ProcessMessage applies a "subscribe" or "unsubscribe" message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Kinds)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Kinds)
	}
}

// Report implements report.Sink.
func (h *Hub) Report(err error) report.Handle {
	handle := report.NewHandle(err)
	h.Record(handle, err)
	return handle
}

// Record implements report.Recorder.
func (h *Hub) Record(handle report.Handle, err error) {
	event := Event{
		Type:      "report",
		ReportID:  handle.ID.String(),
		Kind:      string(handle.Kind),
		Timestamp: handle.ReportedAt,
	}
	if err != nil {
		event.Error = err.Error()
	}
	var d report.Detailed
	if errors.As(err, &d) {
		event.ComponentID = d.ComponentID()
		event.Generator = d.GeneratorName()
	}

	h.Broadcast(event)
}

// Broadcast sends event to every client subscribed to its kind or to
// AllKinds. Clients with a full buffer miss the event.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.kinds[event.Kind] && !client.kinds[AllKinds] {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("report_id", event.ReportID).Msg("client buffer full, event dropped")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ---------------------------------------------------------------------------
// Handler: echo endpoint upgrading to a WebSocket stream
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers are not the intended consumers; tokens are checked before
	// the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers:
//
//	GET /api/v1/deid/reports/stream?kind=a,b
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/deid/reports/stream", h.Connect)
}

// Connect upgrades the request and subscribes the client to the kinds named
// in the kind query parameter, or to every kind when it is absent.
func (h *Handler) Connect(c echo.Context) error {
	kinds := []string{AllKinds}
	if q := c.QueryParam("kind"); q != "" {
		kinds = strings.Split(q, ",")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(64, kinds...)
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
