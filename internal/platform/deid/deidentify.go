package deid

import (
	"strings"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/report"
)

// DeIdentify runs both passes over msg and returns the rewritten message.
// Field-level failures are reported to sink and leave the field as it was;
// an ambiguous identity segment or a rewrite failure yields a nil message
// and the error. items are modified while the call runs, so concurrent
// callers must pass their own copies (see CloneItems).
func DeIdentify(msg *hl7v2.Message, items []*ConfigItem, provider GeneratorProvider, sink report.Sink) (*hl7v2.Message, error) {
	return deIdentify(msg, items, provider, sink, nil)
}

// DeIdentifyObserved is DeIdentify with measurements sent to obs.
func DeIdentifyObserved(msg *hl7v2.Message, items []*ConfigItem, provider GeneratorProvider, sink report.Sink, obs Observer) (*hl7v2.Message, error) {
	out, err := deIdentify(msg, items, provider, sink, obs)
	if obs != nil {
		obs.ObserveMessage(err)
	}
	return out, err
}

func deIdentify(msg *hl7v2.Message, items []*ConfigItem, provider GeneratorProvider, sink report.Sink, obs Observer) (*hl7v2.Message, error) {
	if sink == nil {
		sink = report.Nop{}
	}
	m, err := NewEditManager(items, msg, provider, sink)
	if err != nil {
		sink.Report(err)
		return nil, err
	}
	defer m.Cleanup()
	m.observer = obs

	m.EditIdentity()
	out, err := m.Rewrite()
	if err != nil {
		return nil, err
	}
	if !m.CompletePass() {
		return out, nil
	}

	if err := m.Rebind(out); err != nil {
		m.sink.Report(err)
		return nil, err
	}
	m.EditResidual()
	if len(m.edits) == 0 {
		return out, nil
	}
	return m.Rewrite()
}

// EditResidual runs Edit over every component outside the identity segment.
// The field and encoding characters of MSH are never touched.
func (m *EditManager) EditResidual() {
	for _, seg := range m.msg.Segments {
		if seg == m.identity {
			continue
		}
		msh := strings.EqualFold(seg.Name, "MSH")
		for i, f := range seg.Fields {
			if i == 0 || f == nil || (msh && i <= 2) {
				continue
			}
			for _, c := range f.Components {
				m.Edit(c)
			}
		}
	}
}
