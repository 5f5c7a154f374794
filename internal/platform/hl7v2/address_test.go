package hl7v2

import (
	"errors"
	"testing"
)

const addressMessage = "MSH|^~\\&|App|Fac|||20240115143025||ADT^A01|CTRL1|P|2.5.1\rPID|1||MRN001||Smith^John||19800101|M\rNK1|1|Smith^Mary|SPO\rNK1|2|Jones^Bob|BRO\rNK1|3"

func TestParseComponentID(t *testing.T) {
	tests := []struct {
		in    string
		seg   string
		field int
		comp  int
	}{
		{"PID-5.1", "PID", 5, 0},
		{"NK1-2.3", "NK1", 2, 2},
		{"MSH-0.1", "MSH", 0, 0},
		{"pid-11.5", "pid", 11, 4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := ParseComponentID(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.SegmentName != tt.seg || id.FieldIndex != tt.field || id.ComponentIndex != tt.comp {
				t.Errorf("expected %s/%d/%d, got %+v", tt.seg, tt.field, tt.comp, id)
			}
		})
	}
}

func TestParseComponentID_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"PID",
		"PID5.1",
		"PID-5",
		"PID-5.1.2",
		"PID-5-1.1",
		"-5.1",
		"PID-x.1",
		"PID-5.y",
		"PID-5.0",
		"PID--1.1",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseComponentID(in)
			if !errors.Is(err, ErrMalformedIdentifier) {
				t.Errorf("expected ErrMalformedIdentifier for %q, got %v", in, err)
			}
		})
	}
}

func TestComponentID_StringRoundTrip(t *testing.T) {
	for _, in := range []string{"PID-5.1", "NK1-2.3", "OBX-5.10"} {
		id, err := ParseComponentID(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.String() != in {
			t.Errorf("expected %q, got %q", in, id.String())
		}
	}
}

func TestMessage_GetByID(t *testing.T) {
	msg := parseTestMessage(t, addressMessage)

	comps, err := msg.GetByID("NK1-2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// NK1|3 has no second field and contributes nothing.
	if len(comps) != 2 {
		t.Fatalf("expected 2 components, got %d", len(comps))
	}
	if comps[0].Value() != "Smith" || comps[1].Value() != "Jones" {
		t.Errorf("expected Smith, Jones in segment order, got %q, %q", comps[0].Value(), comps[1].Value())
	}
}

func TestMessage_GetByID_Absent(t *testing.T) {
	msg := parseTestMessage(t, addressMessage)

	for _, id := range []string{"ZZZ-1.1", "PID-40.1", "PID-5.9"} {
		comps, err := msg.GetByID(id)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", id, err)
		}
		if len(comps) != 0 {
			t.Errorf("expected no components for %s, got %d", id, len(comps))
		}
	}
}

func TestMessage_GetByID_Malformed(t *testing.T) {
	msg := parseTestMessage(t, addressMessage)
	if _, err := msg.GetByID("PID5"); !errors.Is(err, ErrMalformedIdentifier) {
		t.Errorf("expected ErrMalformedIdentifier, got %v", err)
	}
}

func TestMessage_GetByID_FieldZero(t *testing.T) {
	msg := parseTestMessage(t, addressMessage)
	comps, err := msg.GetByID("PID-0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comps) != 0 {
		t.Errorf("expected the segment name field to carry no components, got %d", len(comps))
	}
}

func TestMessages_GetByID(t *testing.T) {
	first := parseTestMessage(t, addressMessage)
	second := parseTestMessage(t, testADT)

	comps, err := Messages{first, second}.GetByID("PID-5.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("expected one component per message, got %d", len(comps))
	}
	if comps[0].Value() != "Smith" || comps[1].Value() != "Smith" {
		t.Errorf("unexpected values %q, %q", comps[0].Value(), comps[1].Value())
	}
}

func TestSegment_GetByID(t *testing.T) {
	msg := parseTestMessage(t, addressMessage)
	pid := msg.GetSegment("PID")

	c, err := pid.GetByID("PID-5.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Value() != "John" {
		t.Errorf("expected 'John', got %q", c.Value())
	}

	c, err = pid.GetByID("NK1-2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil for a different segment name, got %q", c.Value())
	}
}

func TestMessage_FindByValue(t *testing.T) {
	msg := parseTestMessage(t, "MSH|^~\\&|App|Fac|||20240115143025||ADT^A01|CTRL1|P|2.5.1\rNK1|1|^Mary\rNK1|2|Jones^Bob")

	c, err := msg.FindByValue("NK1-2.1", "jones")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil || c.Value() != "Jones" {
		t.Errorf("expected case-insensitive match on 'Jones', got %v", c)
	}

	c, _ = msg.FindByValue("NK1-2.1", "NULL")
	if c == nil || !c.Empty() {
		t.Errorf("expected NULL to match the empty family name, got %v", c)
	}

	c, _ = msg.FindByValue("NK1-2.1", "!NULL")
	if c == nil || c.Value() != "Jones" {
		t.Errorf("expected !NULL to match 'Jones', got %v", c)
	}

	c, _ = msg.FindByValue("NK1-2.1", "Nobody")
	if c != nil {
		t.Errorf("expected no match, got %q", c.Value())
	}
}

func TestMessage_IdentitySegment(t *testing.T) {
	msg := parseTestMessage(t, addressMessage)

	pid, err := msg.IdentitySegment("PID")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid.Name != "PID" {
		t.Errorf("expected PID, got %q", pid.Name)
	}

	if _, err := msg.IdentitySegment("NK1"); !errors.Is(err, ErrAmbiguousIdentitySegment) {
		t.Errorf("expected ErrAmbiguousIdentitySegment for repeated NK1, got %v", err)
	}
	if _, err := msg.IdentitySegment("PV1"); !errors.Is(err, ErrAmbiguousIdentitySegment) {
		t.Errorf("expected ErrAmbiguousIdentitySegment for missing PV1, got %v", err)
	}
}
