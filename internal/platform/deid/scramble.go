package deid

import (
	"fmt"
	"strings"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
)

// ScrambleValue replaces every non-empty component in GenerateFrom.
const ScrambleValue = "XaaX"

// GenerateFrom builds a structure-preserving test message from msg: every
// non-empty component value becomes ScrambleValue. MSH keeps MSH-1 and
// MSH-2; every other segment keeps its first field, usually a set id. msg is
// not modified.
func GenerateFrom(msg *hl7v2.Message) (*hl7v2.Message, error) {
	if msg == nil || len(msg.Segments) == 0 {
		return nil, fmt.Errorf("deid: no message to scramble")
	}
	enc := msg.Encoding

	lines := make([]string, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		keep, start := 1, 1
		if strings.EqualFold(seg.Name, "MSH") {
			keep, start = 2, 2
		}

		parts := []string{seg.Name}
		for i := start; i < len(seg.Fields); i++ {
			f := seg.Fields[i]
			if i <= keep {
				parts = append(parts, f.Value)
				continue
			}
			parts = append(parts, scrambleField(f, enc))
		}
		lines = append(lines, strings.Join(parts, string(enc.Field)))
	}

	return hl7v2.ParseString(strings.Join(lines, "\r"))
}

func scrambleField(f *hl7v2.Field, enc hl7v2.Encoding) string {
	reps := make([]string, len(f.Repeats))
	for i, rep := range f.Repeats {
		values := make([]string, len(rep))
		for j, v := range rep {
			if v != "" {
				values[j] = ScrambleValue
			}
		}
		reps[i] = strings.Join(values, string(enc.Component))
	}
	return strings.Join(reps, string(enc.Repetition))
}
