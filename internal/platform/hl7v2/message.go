package hl7v2

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message represents a parsed HL7v2 message.
//
// InputString keeps the raw text exactly as received. The segment tree is
// built from it for locating values; editors that need to produce output
// rewrite InputString and parse the result again.
type Message struct {
	InputString  string
	Encoding     Encoding
	Type         string    // MSH-9 message type (e.g. "ADT^A01")
	ControlID    string    // MSH-10
	Version      string    // MSH-12 (e.g. "2.5.1")
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Segments     []*Segment
}

// Segment represents a single HL7v2 segment.
//
// Fields[0] holds the segment name so that Fields[i] is always SEG-i. For
// MSH this puts the field separator at Fields[1] (MSH-1) and the encoding
// characters at Fields[2] (MSH-2).
type Segment struct {
	Name   string // e.g. "MSH", "PID", "OBR", "OBX"
	Fields []*Field
}

// Field is one delimited field of a segment. Components hold the first
// repetition split on the component separator; Repeats holds every
// repetition.
type Field struct {
	ID         string // e.g. "PID-5"
	Name       string
	Value      string
	Components []*Component
	Repeats    [][]string
}

// Component is the leaf value node of the tree. Its value is a versioned
// cell: Set records a new revision instead of silently overwriting.
type Component struct {
	ID      string // e.g. "PID-5.1"
	Name    string
	value   string
	version int
}

// NewComponent returns a detached component holding value at revision 0.
func NewComponent(id, name, value string) *Component {
	return &Component{ID: id, Name: name, value: value}
}

// Value returns the current raw (still escaped) value.
func (c *Component) Value() string {
	if c == nil {
		return ""
	}
	return c.value
}

// Set stores a new value and advances the revision counter.
func (c *Component) Set(value string) {
	c.value = value
	c.version++
}

// Version reports how many times the value was changed with Set.
func (c *Component) Version() int {
	return c.version
}

// Empty reports whether the component carries no value.
func (c *Component) Empty() bool {
	return c == nil || c.value == ""
}

// Clone returns a detached copy, including its revision counter.
func (c *Component) Clone() *Component {
	cp := *c
	return &cp
}

// Parse parses raw HL7v2 message bytes into a structured Message.
// It supports \r, \n, and \r\n line endings for segment separation.
func Parse(raw []byte) (*Message, error) {
	return ParseString(string(raw))
}

// ParseString is Parse for text input.
func ParseString(text string) (*Message, error) {
	if len(text) == 0 {
		return nil, fmt.Errorf("hl7v2: message is empty")
	}

	// Normalize line endings for splitting only; InputString keeps the original.
	normalized := strings.ReplaceAll(text, "\r\n", "\r")
	normalized = strings.ReplaceAll(normalized, "\n", "\r")

	var segmentLines []string
	for _, line := range strings.Split(normalized, "\r") {
		if strings.TrimSpace(line) != "" {
			segmentLines = append(segmentLines, line)
		}
	}

	if len(segmentLines) == 0 {
		return nil, fmt.Errorf("hl7v2: no segments found")
	}

	// First segment must be MSH
	if !strings.HasPrefix(segmentLines[0], "MSH") {
		return nil, fmt.Errorf("hl7v2: first segment must be MSH, got %q", segmentLines[0][:min(3, len(segmentLines[0]))])
	}

	enc := encodingFromMSH(segmentLines[0])
	msg := &Message{InputString: text, Encoding: enc}

	for _, line := range segmentLines {
		seg, err := parseSegment(line, enc)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: failed to parse segment: %w", err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	msg.extractMSHFields()

	return msg, nil
}

// parseSegment parses a single segment line into a Segment.
func parseSegment(line string, enc Encoding) (*Segment, error) {
	if len(line) < 3 {
		return nil, fmt.Errorf("segment too short: %q", line)
	}

	if strings.HasPrefix(line, "MSH") {
		seg := &Segment{Name: "MSH"}
		seg.Fields = append(seg.Fields, nameField(seg.Name))
		if len(line) < 4 {
			return seg, nil
		}

		// MSH-1 is the separator itself and MSH-2 the encoding characters;
		// neither is split into components.
		parts := strings.Split(line[4:], string(enc.Field))
		seg.Fields = append(seg.Fields, literalField(seg.Name, 1, string(enc.Field)))
		seg.Fields = append(seg.Fields, literalField(seg.Name, 2, parts[0]))
		for i, part := range parts[1:] {
			seg.Fields = append(seg.Fields, parseField(seg.Name, i+3, part, enc))
		}
		return seg, nil
	}

	parts := strings.Split(line, string(enc.Field))
	seg := &Segment{Name: parts[0]}
	seg.Fields = append(seg.Fields, nameField(seg.Name))
	for i, part := range parts[1:] {
		seg.Fields = append(seg.Fields, parseField(seg.Name, i+1, part, enc))
	}
	return seg, nil
}

func nameField(segment string) *Field {
	return &Field{ID: segment + "-0", Name: segment, Value: segment}
}

func literalField(segment string, index int, raw string) *Field {
	id := fieldID(segment, index)
	return &Field{
		ID:         id,
		Name:       fieldName(id),
		Value:      raw,
		Components: []*Component{newComponent(id, 1, raw)},
		Repeats:    [][]string{{raw}},
	}
}

// parseField parses a single field, handling components and repetitions.
func parseField(segment string, index int, raw string, enc Encoding) *Field {
	id := fieldID(segment, index)
	f := &Field{ID: id, Name: fieldName(id), Value: raw}

	for _, rep := range strings.Split(raw, string(enc.Repetition)) {
		f.Repeats = append(f.Repeats, strings.Split(rep, string(enc.Component)))
	}

	for i, value := range f.Repeats[0] {
		f.Components = append(f.Components, newComponent(id, i+1, value))
	}

	return f
}

func newComponent(fieldID string, position int, value string) *Component {
	id := fieldID + "." + strconv.Itoa(position)
	return &Component{ID: id, Name: componentName(id), value: value}
}

func fieldID(segment string, index int) string {
	return segment + "-" + strconv.Itoa(index)
}

// extractMSHFields extracts commonly used MSH fields into the Message struct.
func (m *Message) extractMSHFields() {
	msh := m.GetSegment("MSH")
	if msh == nil {
		return
	}

	m.SendingApp = msh.GetField(3)
	m.SendingFac = msh.GetField(4)
	m.ReceivingApp = msh.GetField(5)
	m.ReceivingFac = msh.GetField(6)

	if ts, err := FromHL7Date(msh.GetField(7)); err == nil {
		m.Timestamp = ts
	}

	m.Type = msh.GetField(9)
	m.ControlID = msh.GetField(10)
	m.Version = msh.GetField(12)
}

// GetSegment returns the first segment with the given name, or nil if not found.
func (m *Message) GetSegment(name string) *Segment {
	for _, seg := range m.Segments {
		if strings.EqualFold(seg.Name, name) {
			return seg
		}
	}
	return nil
}

// GetSegments returns all segments with the given name.
func (m *Message) GetSegments(name string) []*Segment {
	var result []*Segment
	for _, seg := range m.Segments {
		if strings.EqualFold(seg.Name, name) {
			result = append(result, seg)
		}
	}
	return result
}

// Components returns every component of the message in document order.
func (m *Message) Components() []*Component {
	var result []*Component
	for _, seg := range m.Segments {
		result = append(result, seg.Components()...)
	}
	return result
}

// Field returns Fields[index] (SEG-index), or nil when the field is absent.
func (s *Segment) Field(index int) *Field {
	if index < 0 || index >= len(s.Fields) {
		return nil
	}
	return s.Fields[index]
}

// GetField returns the raw value of SEG-index, or "" when absent.
func (s *Segment) GetField(index int) string {
	f := s.Field(index)
	if f == nil {
		return ""
	}
	return f.Value
}

// GetComponent returns a component value by field index and 1-based
// component position.
func (s *Segment) GetComponent(fieldIdx, compIdx int) string {
	f := s.Field(fieldIdx)
	if f == nil {
		return ""
	}
	ci := compIdx - 1
	if ci < 0 || ci >= len(f.Components) {
		return ""
	}
	return f.Components[ci].Value()
}

// Components returns every component of the segment in field order.
func (s *Segment) Components() []*Component {
	var result []*Component
	for _, f := range s.Fields {
		result = append(result, f.Components...)
	}
	return result
}

// PatientID returns PID-3.1 (the first component of the patient identifier field).
func (m *Message) PatientID() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetComponent(3, 1)
}

// PatientName returns the family and given name from PID-5 (family^given).
func (m *Message) PatientName() (family, given string) {
	pid := m.GetSegment("PID")
	if pid == nil {
		return "", ""
	}
	return pid.GetComponent(5, 1), pid.GetComponent(5, 2)
}

// DateOfBirth returns PID-7 (date of birth).
func (m *Message) DateOfBirth() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetField(7)
}

// Gender returns PID-8 (administrative sex).
func (m *Message) Gender() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetField(8)
}
