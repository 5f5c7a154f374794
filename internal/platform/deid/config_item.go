package deid

import (
	"fmt"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
)

// PHIDefaultValue replaces a configured field that names neither a generator
// nor a static value.
const PHIDefaultValue = "DEFAULT"

// Replacement rewrites the value a generator receives. With Partial unset
// the whole value must match (case-insensitively); otherwise every
// case-insensitive occurrence of Match is replaced.
type Replacement struct {
	Match   string `json:"match" yaml:"match" toml:"match"`
	Replace string `json:"replace" yaml:"replace" toml:"replace"`
	Partial bool   `json:"partial,omitempty" yaml:"partial,omitempty" toml:"partial,omitempty"`
}

// Apply returns value with the replacement applied.
func (r Replacement) Apply(value string) string {
	if r.Match == "" {
		return value
	}
	re := foldPattern(r.Match)
	if r.Partial {
		return re.ReplaceAllLiteralString(value, r.Replace)
	}
	if loc := re.FindStringIndex(value); loc != nil && loc[0] == 0 && loc[1] == len(value) {
		return r.Replace
	}
	return value
}

// ConfigItem is the edit policy for one component identifier.
type ConfigItem struct {
	ID         string        `json:"id" yaml:"id" toml:"id"`
	Label      string        `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Type       string        `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Generator  string        `json:"generator,omitempty" yaml:"generator,omitempty" toml:"generator,omitempty"`
	Static     *string       `json:"static,omitempty" yaml:"static,omitempty" toml:"static,omitempty"`
	Repass     bool          `json:"repass,omitempty" yaml:"repass,omitempty" toml:"repass,omitempty"`
	PreReplace []Replacement `json:"preReplace,omitempty" yaml:"preReplace,omitempty" toml:"preReplace,omitempty"`

	// Gender is derived from the identity segment and shared by every item
	// of the message being processed.
	Gender Gender `json:"-" yaml:"-" toml:"-"`

	// OldValue is the original value captured in pass 1.
	OldValue string `json:"-" yaml:"-" toml:"-"`

	cid       hl7v2.ComponentID
	generator Generator
}

// StaticValue returns a pointer to s, for building items in code.
func StaticValue(s string) *string {
	return &s
}

// Clone returns a copy that shares nothing mutable with c.
func (c *ConfigItem) Clone() *ConfigItem {
	cp := *c
	if c.Static != nil {
		cp.Static = StaticValue(*c.Static)
	}
	if c.PreReplace != nil {
		cp.PreReplace = append([]Replacement(nil), c.PreReplace...)
	}
	return &cp
}

// CloneItems clones every item, so each message gets private state.
func CloneItems(items []*ConfigItem) []*ConfigItem {
	out := make([]*ConfigItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// SetGenerator binds g. A nil g leaves the item unbound.
func (c *ConfigItem) SetGenerator(g Generator) {
	c.generator = g
}

// BoundGenerator returns the bound generator, or nil.
func (c *ConfigItem) BoundGenerator() Generator {
	return c.generator
}

// ComponentID returns the parsed identifier.
func (c *ConfigItem) ComponentID() (hl7v2.ComponentID, error) {
	if c.cid.SegmentName != "" {
		return c.cid, nil
	}
	cid, err := hl7v2.ParseComponentID(c.ID)
	if err != nil {
		return hl7v2.ComponentID{}, err
	}
	c.cid = cid
	return cid, nil
}

// Value computes the replacement for the original value. A named but
// unbound generator yields ErrUnresolvedGenerator; generator errors and
// panics yield ErrGeneratorFailure. Both come wrapped in a *FieldError.
func (c *ConfigItem) Value(original string) (string, error) {
	switch {
	case c.generator != nil:
		return c.generate(c.preReplace(original))
	case c.Generator != "":
		return "", &FieldError{ID: c.ID, Generator: c.Generator, Err: ErrUnresolvedGenerator}
	case c.Static != nil:
		return *c.Static, nil
	default:
		return PHIDefaultValue, nil
	}
}

func (c *ConfigItem) preReplace(value string) string {
	for _, r := range c.PreReplace {
		value = r.Apply(value)
	}
	return value
}

func (c *ConfigItem) generate(value string) (out string, err error) {
	name := c.Generator
	if name == "" {
		name = c.generator.Name()
	}
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = &FieldError{ID: c.ID, Generator: name, Err: fmt.Errorf("%w: panic: %v", ErrGeneratorFailure, r)}
		}
	}()

	out, err = c.generator.Generate(valueItem(value), Context{ID: c.ID, Type: c.Type, Gender: c.Gender})
	if err != nil {
		return "", &FieldError{ID: c.ID, Generator: name, Err: fmt.Errorf("%w: %w", ErrGeneratorFailure, err)}
	}
	return out, nil
}

// Cleanup clears per-message state.
func (c *ConfigItem) Cleanup() {
	c.OldValue = ""
	c.Gender = GenderUnknown
}
