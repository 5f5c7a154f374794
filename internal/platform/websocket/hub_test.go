package websocket

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7deid/internal/platform/report"
)

type fieldErr struct {
	kind report.Kind
	id   string
}

func (e *fieldErr) Error() string           { return "field " + e.id + " failed" }
func (e *fieldErr) ReportKind() report.Kind { return e.kind }
func (e *fieldErr) ComponentID() string     { return e.id }
func (e *fieldErr) GeneratorName() string   { return "LastName" }

func receive(t *testing.T, c *Client) (Event, bool) {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev, true
	default:
		return Event{}, false
	}
}

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(4, AllKinds)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, open := <-client.Send; open {
		t.Error("expected Send to be closed")
	}

	// A second Unregister is a no-op.
	hub.Unregister(client)
}

func TestHub_ReportFiltersByKind(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	all := NewClient(4, AllKinds)
	failures := NewClient(4, string(report.KindGeneratorFailure))
	rewrites := NewClient(4, string(report.KindRewriteFailure))
	hub.Register(all)
	hub.Register(failures)
	hub.Register(rewrites)

	h := hub.Report(&fieldErr{kind: report.KindGeneratorFailure, id: "PID-5.1"})
	if h.Kind != report.KindGeneratorFailure {
		t.Errorf("expected kind %s, got %s", report.KindGeneratorFailure, h.Kind)
	}

	for _, c := range []*Client{all, failures} {
		ev, ok := receive(t, c)
		if !ok {
			t.Fatal("expected an event")
		}
		if ev.Type != "report" || ev.ReportID != h.ID.String() || ev.ComponentID != "PID-5.1" || ev.Generator != "LastName" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Error != "field PID-5.1 failed" {
			t.Errorf("expected error text, got %q", ev.Error)
		}
	}
	if _, ok := receive(t, rewrites); ok {
		t.Error("expected no event for an unsubscribed kind")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(4)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Kinds: []string{string(report.KindUnknown)}})
	hub.Report(errors.New("plain failure"))
	if ev, ok := receive(t, client); !ok || ev.Kind != string(report.KindUnknown) {
		t.Errorf("expected an unknown-kind event, got %+v (%v)", ev, ok)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Kinds: []string{string(report.KindUnknown)}})
	hub.Report(errors.New("plain failure"))
	if _, ok := receive(t, client); ok {
		t.Error("expected no event after unsubscribing")
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(1, AllKinds)
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		hub.Report(errors.New("one"))
		hub.Report(errors.New("two"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a full client buffer")
	}
	if len(client.Send) != 1 {
		t.Errorf("expected 1 buffered event, got %d", len(client.Send))
	}
}

func TestHub_IsSink(t *testing.T) {
	var _ report.Sink = NewHub(zerolog.Nop())
	var _ report.Recorder = NewHub(zerolog.Nop())
}

func TestHub_SharesHandleWithOtherSinks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(4, AllKinds)
	hub.Register(client)
	mem := report.NewMemory()

	h := report.Multi(mem, hub).Report(&fieldErr{kind: report.KindGeneratorFailure, id: "PID-7.1"})

	ev, ok := receive(t, client)
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.ReportID != h.ID.String() {
		t.Errorf("expected event id %s, got %s", h.ID, ev.ReportID)
	}
	if got := mem.Entries()[0].Handle.ID; got != h.ID {
		t.Errorf("expected memory id %s, got %s", h.ID, got)
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_StreamsReports(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub).RegisterRoutes(e.Group("/api/v1"))

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/deid/reports/stream?kind=" + string(report.KindGeneratorFailure)
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Report(&fieldErr{kind: report.KindRewriteFailure, id: "PID-3.1"})
	hub.Report(&fieldErr{kind: report.KindGeneratorFailure, id: "PID-5.1"})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	if ev.Kind != string(report.KindGeneratorFailure) || ev.ComponentID != "PID-5.1" {
		t.Errorf("expected only the subscribed kind, got %+v", ev)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop())).RegisterRoutes(e.Group("/api/v1"))

	found := false
	for _, r := range e.Routes() {
		if r.Method == "GET" && r.Path == "/api/v1/deid/reports/stream" {
			found = true
		}
	}
	if !found {
		t.Error("expected GET /api/v1/deid/reports/stream to be registered")
	}
}
