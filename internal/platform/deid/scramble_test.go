package deid

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
)

func TestGenerateFrom(t *testing.T) {
	msg := mustParse(t, sampleADT)

	out, err := GenerateFrom(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(out.InputString, "MSH|^~\\&|XaaX|XaaX|") {
		t.Errorf("expected MSH delimiters to be kept, got %q", out.InputString)
	}
	if len(out.Segments) != len(msg.Segments) {
		t.Fatalf("expected %d segments, got %d", len(msg.Segments), len(out.Segments))
	}

	pid := out.GetSegment("PID")
	if pid.GetField(1) != "1" {
		t.Errorf("expected PID-1 to be kept, got %q", pid.GetField(1))
	}
	if pid.GetField(2) != "" {
		t.Errorf("expected empty PID-2 to stay empty, got %q", pid.GetField(2))
	}
	if pid.GetField(3) != "XaaX^^^XaaX^XaaX" {
		t.Errorf("expected component shape to be kept, got %q", pid.GetField(3))
	}
	if pid.GetComponent(5, 1) != ScrambleValue {
		t.Errorf("expected %q, got %q", ScrambleValue, pid.GetComponent(5, 1))
	}
	if strings.Contains(out.InputString, "SMITH") {
		t.Error("expected no original value to survive")
	}
	if msg.GetSegment("PID").GetComponent(5, 1) != "SMITH" {
		t.Error("expected the input message to be untouched")
	}
}

func TestGenerateFrom_Repeats(t *testing.T) {
	msg := mustParse(t, "MSH|^~\\&|App|Fac|||20240115120000||ADT^A01|C1|P|2.5.1\rPID|1||A1^^^H~B2^^^H")

	out, err := GenerateFrom(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.GetSegment("PID").GetField(3); got != "XaaX^^^XaaX~XaaX^^^XaaX" {
		t.Errorf("expected every repetition to be scrambled, got %q", got)
	}
}

func TestGenerateFrom_NilMessage(t *testing.T) {
	if _, err := GenerateFrom(nil); err == nil {
		t.Error("expected error for nil message")
	}
}

func TestBatch_KeepsOrder(t *testing.T) {
	ambiguous := "MSH|^~\\&|App|Fac|||20240115120000||ADT^A01|C2|P|2.5.1\rNTE|1||no patient"
	other := strings.NewReplacer("SMITH", "BROWN", "MSG001", "MSG003").Replace(sampleADT)
	msgs := []*hl7v2.Message{
		mustParse(t, sampleADT),
		mustParse(t, ambiguous),
		mustParse(t, other),
	}
	items := nameItems()

	results, err := Batch(context.Background(), msgs, items, nameGenerators(), nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("expected index %d, got %d", i, r.Index)
		}
	}

	if results[0].Err != nil || results[0].Message.ControlID != "MSG001" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if !errors.Is(results[1].Err, ErrAmbiguousIdentitySegment) || results[1].Message != nil {
		t.Errorf("expected ambiguous identity failure, got %+v", results[1])
	}
	if results[2].Err != nil || results[2].Message.ControlID != "MSG003" {
		t.Errorf("unexpected third result: %+v", results[2])
	}
	if family, _ := results[2].Message.PatientName(); family != "DOE" {
		t.Errorf("expected 'DOE', got %q", family)
	}

	// The shared configuration is cloned per message.
	for _, it := range items {
		if it.BoundGenerator() != nil || it.Gender != GenderUnknown {
			t.Errorf("expected %s to be untouched, got %+v", it.ID, it)
		}
	}
}

func TestBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs := []*hl7v2.Message{mustParse(t, sampleADT)}
	_, err := Batch(ctx, msgs, nameItems(), nameGenerators(), nil, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBatch_Empty(t *testing.T) {
	results, err := Batch(context.Background(), nil, nameItems(), nameGenerators(), nil, 0)
	if err != nil || len(results) != 0 {
		t.Errorf("expected no results and no error, got %v / %v", results, err)
	}
}
