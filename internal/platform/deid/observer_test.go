package deid

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type recordingObserver struct {
	mu       sync.Mutex
	rewrites []time.Duration
	messages []error
}

func (o *recordingObserver) ObserveRewrite(d time.Duration) {
	o.mu.Lock()
	o.rewrites = append(o.rewrites, d)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveMessage(err error) {
	o.mu.Lock()
	o.messages = append(o.messages, err)
	o.mu.Unlock()
}

func TestDeIdentifyObserved_Success(t *testing.T) {
	obs := &recordingObserver{}
	out, err := DeIdentifyObserved(mustParse(t, sampleADT), nameItems(), nameGenerators(), nil, obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("expected a message")
	}

	if len(obs.messages) != 1 || obs.messages[0] != nil {
		t.Errorf("expected one successful message, got %v", obs.messages)
	}
	// Pass 1 always rewrites; pass 2 only when it found residual PHI.
	if len(obs.rewrites) < 1 || len(obs.rewrites) > 2 {
		t.Errorf("expected one or two rewrites, got %d", len(obs.rewrites))
	}
	for _, d := range obs.rewrites {
		if d < 0 {
			t.Errorf("expected a non-negative duration, got %v", d)
		}
	}
}

func TestDeIdentifyObserved_Failure(t *testing.T) {
	obs := &recordingObserver{}
	msg := mustParse(t, "MSH|^~\\&|App|Fac|||20240115120000||ADT^A01|C9|P|2.5.1\rNTE|1||no patient")

	_, err := DeIdentifyObserved(msg, nameItems(), nameGenerators(), nil, obs)
	if !errors.Is(err, ErrAmbiguousIdentitySegment) {
		t.Fatalf("expected ErrAmbiguousIdentitySegment, got %v", err)
	}
	if len(obs.messages) != 1 || !errors.Is(obs.messages[0], ErrAmbiguousIdentitySegment) {
		t.Errorf("expected the failure to be observed, got %v", obs.messages)
	}
	if len(obs.rewrites) != 0 {
		t.Errorf("expected no rewrite, got %d", len(obs.rewrites))
	}
}

func TestDeIdentify_NilObserver(t *testing.T) {
	if _, err := DeIdentifyObserved(mustParse(t, sampleADT), nameItems(), nameGenerators(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGateway_WithObserver(t *testing.T) {
	obs := &recordingObserver{}
	gw := NewGateway(nameItems(), nameGenerators(), nil, "", zerolog.Nop()).WithObserver(obs)

	gw.Handler()(mustParse(t, sampleADT))

	if len(obs.messages) != 1 {
		t.Errorf("expected one observed message, got %d", len(obs.messages))
	}
}

func TestHandler_WithObserver(t *testing.T) {
	obs := &recordingObserver{}
	h := newTestHandler(nil).WithObserver(obs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7v2/deidentify", strings.NewReader(sampleADT))
	rec := httptest.NewRecorder()
	if err := h.DeIdentify(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(obs.messages) != 1 || obs.messages[0] != nil {
		t.Errorf("expected one successful message, got %v", obs.messages)
	}
}
