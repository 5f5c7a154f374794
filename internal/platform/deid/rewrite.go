package deid

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
)

// Rewrite applies the recorded edits to the raw text of the bound message
// and parses the result. Shorter original values are substituted first, and
// every substitution is cascaded into the originals still pending so nested
// values stay consistent. Any failure is reported and returned as
// ErrRewriteFailure; no partially edited message is produced.
func (m *EditManager) Rewrite() (*hl7v2.Message, error) {
	if m.observer != nil {
		defer func(start time.Time) { m.observer.ObserveRewrite(time.Since(start)) }(time.Now())
	}

	final := m.finalEdits()
	sort.SliceStable(final, func(i, j int) bool {
		return len(final[i].OldValue) < len(final[j].OldValue)
	})

	text := m.msg.InputString
	for j := range final {
		if final[j].OldValue == "" {
			continue
		}
		re := foldPattern(final[j].OldValue)
		text = re.ReplaceAllLiteralString(text, final[j].NewValue)
		for i := j + 1; i < len(final); i++ {
			final[i].OldValue = re.ReplaceAllLiteralString(final[i].OldValue, final[j].NewValue)
		}
	}

	out, err := hl7v2.ParseString(text)
	if err != nil {
		return nil, m.rewriteFailed(err)
	}
	return out, nil
}

// finalEdits expands the recorded edits into one item per occurrence. In
// pass 1 every ComponentID is resolved again against the whole message so
// repeated segments receive the same value; pass 2 edits already name the
// exact text they replace.
func (m *EditManager) finalEdits() []EditItem {
	if m.pass != 1 {
		return append([]EditItem(nil), m.edits...)
	}

	var final []EditItem
	for _, e := range m.edits {
		cs, err := m.msg.GetByID(e.ComponentID)
		if err != nil || len(cs) == 0 {
			final = append(final, e)
			continue
		}
		for _, c := range cs {
			if c.Empty() {
				continue
			}
			final = append(final, EditItem{ComponentID: e.ComponentID, OldValue: c.Value(), NewValue: e.NewValue})
		}
	}
	return final
}

func (m *EditManager) rewriteFailed(cause error) error {
	err := fmt.Errorf("%w: %w", ErrRewriteFailure, cause)
	m.sink.Report(err)
	return err
}

// foldPattern matches s literally, ignoring case. Rewrite, the pass 2 scan
// and PreReplace all match through it so they agree on every case fold,
// including folds that change the byte length.
func foldPattern(s string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(s))
}
