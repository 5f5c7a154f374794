// Package report receives non-fatal and fatal de-identification failures.
// The engine hands every failure to a Sink and never inspects the returned
// Handle; hosts decide where reports go (logs, memory, Postgres).
package report

import (
	"errors"
	"sync"
	"time"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/google/uuid"
)

// Kind classifies a reported failure.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindMalformedIdentifier Kind = "malformed_identifier"
	KindAmbiguousIdentity   Kind = "ambiguous_identity_segment"
	KindUnresolvedGenerator Kind = "unresolved_generator"
	KindGeneratorFailure    Kind = "generator_failure"
	KindRewriteFailure      Kind = "rewrite_failure"
)

// Classified is implemented by errors that know their report kind.
type Classified interface {
	ReportKind() Kind
}

// KindOf walks the wrap chain of err and returns the first kind it finds.
func KindOf(err error) Kind {
	var c Classified
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &c):
		return c.ReportKind()
	case errors.Is(err, hl7v2.ErrMalformedIdentifier):
		return KindMalformedIdentifier
	case errors.Is(err, hl7v2.ErrAmbiguousIdentitySegment):
		return KindAmbiguousIdentity
	default:
		return KindUnknown
	}
}

// Handle identifies one report.
type Handle struct {
	ID         uuid.UUID
	Kind       Kind
	ReportedAt time.Time
}

// NewHandle classifies err and assigns it a fresh report id.
func NewHandle(err error) Handle {
	return Handle{ID: uuid.New(), Kind: KindOf(err), ReportedAt: time.Now().UTC()}
}

// Sink records failures. Implementations must be safe for concurrent use.
type Sink interface {
	Report(err error) Handle
}

// Recorder is implemented by sinks that can record a failure under a handle
// minted elsewhere. Multi uses it so every sink shares one report id.
type Recorder interface {
	Record(h Handle, err error)
}

// Nop discards every report.
type Nop struct{}

func (Nop) Report(err error) Handle { return NewHandle(err) }

// Entry is a recorded failure.
type Entry struct {
	Handle Handle
	Err    error
}

// Memory keeps reports in memory, in arrival order.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Report(err error) Handle {
	h := NewHandle(err)
	m.Record(h, err)
	return h
}

func (m *Memory) Record(h Handle, err error) {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Handle: h, Err: err})
	m.mu.Unlock()
}

// Entries returns a copy of everything reported so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of reports.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// multi fans one report out to several sinks under a single handle.
type multi struct {
	sinks []Sink
}

// Multi returns a Sink that forwards to every non-nil sink. The handle is
// minted once; sinks that are not Recorders assign their own.
func Multi(sinks ...Sink) Sink {
	var kept []Sink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return &multi{sinks: kept}
}

func (m *multi) Report(err error) Handle {
	h := NewHandle(err)
	m.Record(h, err)
	return h
}

func (m *multi) Record(h Handle, err error) {
	for _, s := range m.sinks {
		if r, ok := s.(Recorder); ok {
			r.Record(h, err)
			continue
		}
		s.Report(err)
	}
}
