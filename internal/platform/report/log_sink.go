package report

import (
	"errors"

	"github.com/rs/zerolog"
)

// Detailed is implemented by errors that carry the component and generator
// they concern. Both values are logged when present.
type Detailed interface {
	ComponentID() string
	GeneratorName() string
}

// LogSink writes every report as a structured zerolog event.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "deid-report").Logger()}
}

func (s *LogSink) Report(err error) Handle {
	h := NewHandle(err)
	s.Record(h, err)
	return h
}

func (s *LogSink) Record(h Handle, err error) {
	event := s.logger.Warn()
	if h.Kind == KindRewriteFailure || h.Kind == KindAmbiguousIdentity {
		event = s.logger.Error()
	}
	event = event.
		Str("report_id", h.ID.String()).
		Str("kind", string(h.Kind)).
		Err(err)

	var d Detailed
	if errors.As(err, &d) {
		if id := d.ComponentID(); id != "" {
			event = event.Str("component_id", id)
		}
		if g := d.GeneratorName(); g != "" {
			event = event.Str("generator", g)
		}
	}
	event.Msg("de-identification failure reported")
}
