package deid

import (
	"fmt"
	"strings"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/report"
)

// IdentitySegment is the segment that carries the patient's identifiers.
const IdentitySegment = "PID"

// EditItem is one substitution recorded during a pass. NewValue is already
// escaped for the message's delimiters.
type EditItem struct {
	ComponentID string
	OldValue    string
	NewValue    string
}

// replacement is a repass entry: the value computed in pass 1 for an
// original value, reused verbatim in pass 2.
type replacement struct {
	item   *ConfigItem
	source *hl7v2.Component
	value  string
}

// EditManager runs the two-pass substitution over one message at a time.
// It is stateful and must not be shared between goroutines; use one manager
// per message for parallel work.
type EditManager struct {
	items    []*ConfigItem
	provider GeneratorProvider
	sink     report.Sink

	msg      *hl7v2.Message
	identity *hl7v2.Segment
	gender   Gender

	pass         int
	edits        []EditItem
	replacements map[string]replacement
	order        []string

	observer Observer
}

// NewEditManager binds items to the generators of provider, locates the
// identity segment of msg and derives the message gender. Unresolved
// generator names are reported to sink and leave their items unbound.
func NewEditManager(items []*ConfigItem, msg *hl7v2.Message, provider GeneratorProvider, sink report.Sink) (*EditManager, error) {
	if sink == nil {
		sink = report.Nop{}
	}
	m := &EditManager{
		items:        items,
		provider:     provider,
		sink:         sink,
		pass:         1,
		replacements: make(map[string]replacement),
	}

	for _, it := range items {
		if _, err := it.ComponentID(); err != nil {
			return nil, fmt.Errorf("deid: config item %q: %w", it.ID, err)
		}
		m.bind(it)
	}

	if err := m.Rebind(msg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EditManager) bind(it *ConfigItem) {
	if it.Generator == "" {
		it.SetGenerator(nil)
		return
	}
	var g Generator
	if m.provider != nil {
		g, _ = m.provider.Lookup(it.Generator)
	}
	it.SetGenerator(g)
	if g == nil {
		m.sink.Report(&FieldError{ID: it.ID, Generator: it.Generator, Err: ErrUnresolvedGenerator})
	}
}

// Rebind points the manager at msg, keeping pass state. The gender is
// derived again from msg's identity segment and shared by every item.
func (m *EditManager) Rebind(msg *hl7v2.Message) error {
	if msg == nil {
		return fmt.Errorf("deid: no message")
	}
	identity, err := msg.IdentitySegment(IdentitySegment)
	if err != nil {
		return err
	}

	m.msg = msg
	m.identity = identity
	m.gender = ParseGender(identity.GetComponent(8, 1))
	for _, it := range m.items {
		it.Gender = m.gender
	}
	return nil
}

// Message returns the message the manager is bound to.
func (m *EditManager) Message() *hl7v2.Message { return m.msg }

// Pass returns 1 for direct edits and 2 for the repass sweep.
func (m *EditManager) Pass() int { return m.pass }

// Gender returns the gender derived for the bound message.
func (m *EditManager) Gender() Gender { return m.gender }

// Items returns the configuration the manager was built with.
func (m *EditManager) Items() []*ConfigItem { return m.items }

// Edits returns a copy of the substitutions recorded in the current pass.
func (m *EditManager) Edits() []EditItem {
	return append([]EditItem(nil), m.edits...)
}

// Replacements returns the repass keys in capture order.
func (m *EditManager) Replacements() []string {
	return append([]string(nil), m.order...)
}

// itemFor returns the first item addressing id.
func (m *EditManager) itemFor(id string) *ConfigItem {
	cid, err := hl7v2.ParseComponentID(id)
	if err != nil {
		return nil
	}
	for _, it := range m.items {
		if sameComponent(it.cid, cid) {
			return it
		}
	}
	return nil
}

func sameComponent(a, b hl7v2.ComponentID) bool {
	return strings.EqualFold(a.SegmentName, b.SegmentName) &&
		a.FieldIndex == b.FieldIndex &&
		a.ComponentIndex == b.ComponentIndex
}

// Edit returns the edited form of c. The source tree is never modified: a
// detached copy carries the new value. c is returned unchanged when nothing
// applies or the field failed; failures go to the report sink.
func (m *EditManager) Edit(c *hl7v2.Component) *hl7v2.Component {
	if c.Empty() {
		return c
	}
	if m.pass == 1 {
		it := m.itemFor(c.ID)
		if it == nil {
			return c
		}
		return m.editWith(it, c)
	}
	return m.editResidual(c)
}

// EditIdentity runs pass 1 over every configured component of the identity
// segment, in configuration order.
func (m *EditManager) EditIdentity() {
	for _, it := range m.items {
		c := m.identity.Component(it.cid)
		if c.Empty() {
			continue
		}
		m.editWith(it, c)
	}
}

func (m *EditManager) editWith(it *ConfigItem, c *hl7v2.Component) *hl7v2.Component {
	original := c.Value()
	value, err := it.Value(hl7v2.Unescape(original, m.msg.Encoding))
	if err != nil {
		m.sink.Report(err)
		return c
	}

	it.OldValue = original
	if it.Repass {
		// First writer wins: a later field sharing the same original value
		// does not replace the captured entry.
		if _, ok := m.replacements[original]; !ok {
			m.replacements[original] = replacement{item: it, source: c, value: value}
			m.order = append(m.order, original)
		}
	}

	escaped := hl7v2.Escape(value, m.msg.Encoding)
	m.edits = append(m.edits, EditItem{ComponentID: c.ID, OldValue: original, NewValue: escaped})

	out := c.Clone()
	out.Set(escaped)
	return out
}

// editResidual splices the pass 1 value of the first replacement key found
// in c. Occurrences that already sit inside the generated value are ignored
// so generators that echo their input do not cascade.
func (m *EditManager) editResidual(c *hl7v2.Component) *hl7v2.Component {
	text := c.Value()
	for _, key := range m.order {
		r := m.replacements[key]
		escaped := hl7v2.Escape(r.value, m.msg.Encoding)
		loc := residualSpan(text, key, escaped)
		if loc == nil {
			continue
		}

		edited := text[:loc[0]] + escaped + text[loc[1]:]
		m.edits = append(m.edits, EditItem{ComponentID: c.ID, OldValue: text, NewValue: edited})

		out := c.Clone()
		out.Set(edited)
		return out
	}
	return c
}

// residualSpan locates key in text, case-insensitively, outside any
// occurrence of value. It returns nil when there is none.
func residualSpan(text, key, value string) []int {
	if key == "" {
		return nil
	}
	keyRe := foldPattern(key)
	if value == "" || !keyRe.MatchString(value) {
		return keyRe.FindStringIndex(text)
	}

	masked := []byte(text)
	for _, loc := range foldPattern(value).FindAllStringIndex(text, -1) {
		for j := loc[0]; j < loc[1]; j++ {
			masked[j] = 0
		}
	}
	return keyRe.FindStringIndex(string(masked))
}

// CompletePass moves to pass 2 when pass 1 captured repass values. The
// edits of pass 1 are dropped; they must have been rewritten already.
func (m *EditManager) CompletePass() bool {
	if m.pass != 1 || len(m.order) == 0 {
		return false
	}
	m.pass = 2
	m.edits = nil
	return true
}

// Cleanup resets the manager for the next message.
func (m *EditManager) Cleanup() {
	m.pass = 1
	m.edits = nil
	m.replacements = make(map[string]replacement)
	m.order = nil
	for _, it := range m.items {
		it.Cleanup()
	}
}
