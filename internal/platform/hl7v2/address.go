package hl7v2

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedIdentifier is returned when a "SEG-f.c" identifier does not parse.
	ErrMalformedIdentifier = errors.New("hl7v2: malformed component identifier")

	// ErrAmbiguousIdentitySegment is returned when a message holds zero or
	// several instances of a segment that must appear exactly once.
	ErrAmbiguousIdentitySegment = errors.New("hl7v2: identity segment must appear exactly once")
)

// ComponentID locates a component: SegmentName, the field index as written
// in the identifier, and the 0-based component index.
//
// FieldIndex is not decremented because Segment.Fields[0] holds the segment
// name, so "PID-5" is Fields[5]. ComponentIndex is decremented: "PID-5.1"
// is Fields[5].Components[0].
type ComponentID struct {
	SegmentName    string
	FieldIndex     int
	ComponentIndex int
}

// ParseComponentID converts an identifier such as "PID-5.1" into a ComponentID.
func ParseComponentID(s string) (ComponentID, error) {
	if strings.Count(s, "-") != 1 {
		return ComponentID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	segment, rest, _ := strings.Cut(s, "-")
	if segment == "" || strings.Count(rest, ".") != 1 {
		return ComponentID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}

	fieldPart, compPart, _ := strings.Cut(rest, ".")
	field, err := strconv.Atoi(fieldPart)
	if err != nil || field < 0 {
		return ComponentID{}, fmt.Errorf("%w: %q: field index %q", ErrMalformedIdentifier, s, fieldPart)
	}
	comp, err := strconv.Atoi(compPart)
	if err != nil || comp < 1 {
		return ComponentID{}, fmt.Errorf("%w: %q: component index %q", ErrMalformedIdentifier, s, compPart)
	}

	return ComponentID{
		SegmentName:    segment,
		FieldIndex:     field,
		ComponentIndex: comp - 1,
	}, nil
}

// String serializes the identifier back to "SEG-f.c".
func (id ComponentID) String() string {
	return id.SegmentName + "-" + strconv.Itoa(id.FieldIndex) + "." + strconv.Itoa(id.ComponentIndex+1)
}

// Component resolves id inside this segment. It returns nil when the segment
// name differs or the field/component does not exist.
func (s *Segment) Component(id ComponentID) *Component {
	if !strings.EqualFold(s.Name, id.SegmentName) {
		return nil
	}
	f := s.Field(id.FieldIndex)
	if f == nil || id.ComponentIndex < 0 || id.ComponentIndex >= len(f.Components) {
		return nil
	}
	return f.Components[id.ComponentIndex]
}

// GetByID resolves an identifier string inside this segment.
func (s *Segment) GetByID(id string) (*Component, error) {
	cid, err := ParseComponentID(id)
	if err != nil {
		return nil, err
	}
	return s.Component(cid), nil
}

// Resolve returns one component per segment instance that holds id.
func (m *Message) Resolve(id ComponentID) []*Component {
	var result []*Component
	for _, seg := range m.GetSegments(id.SegmentName) {
		if c := seg.Component(id); c != nil {
			result = append(result, c)
		}
	}
	return result
}

// GetByID parses id and resolves it against every matching segment. The
// result is empty, not an error, when nothing resolves.
func (m *Message) GetByID(id string) ([]*Component, error) {
	cid, err := ParseComponentID(id)
	if err != nil {
		return nil, err
	}
	return m.Resolve(cid), nil
}

// FindByValue returns the first component addressed by id whose value
// matches. match is compared case-insensitively; the special values "NULL"
// and "!NULL" match empty and non-empty components respectively.
func (m *Message) FindByValue(id, match string) (*Component, error) {
	cid, err := ParseComponentID(id)
	if err != nil {
		return nil, err
	}
	for _, c := range m.Resolve(cid) {
		switch strings.ToUpper(match) {
		case "NULL":
			if c.Empty() {
				return c, nil
			}
		case "!NULL":
			if !c.Empty() {
				return c, nil
			}
		default:
			if strings.EqualFold(c.Value(), match) {
				return c, nil
			}
		}
	}
	return nil, nil
}

// IdentitySegment returns the single segment called name, or
// ErrAmbiguousIdentitySegment when there are none or several.
func (m *Message) IdentitySegment(name string) (*Segment, error) {
	segments := m.GetSegments(name)
	if len(segments) != 1 {
		return nil, fmt.Errorf("%w: found %d %s segments", ErrAmbiguousIdentitySegment, len(segments), name)
	}
	return segments[0], nil
}

// Messages is an ordered collection of parsed messages.
type Messages []*Message

// GetByID concatenates the per-message results of Message.GetByID.
func (ms Messages) GetByID(id string) ([]*Component, error) {
	cid, err := ParseComponentID(id)
	if err != nil {
		return nil, err
	}
	var result []*Component
	for _, m := range ms {
		result = append(result, m.Resolve(cid)...)
	}
	return result, nil
}
