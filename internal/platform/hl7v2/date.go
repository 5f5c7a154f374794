package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// HL7DateLayout is the full HL7v2 DTM layout written by ToHL7Date.
const HL7DateLayout = "20060102150405"

// ToHL7Date formats t as an HL7v2 timestamp (YYYYMMDDHHmmss).
func ToHL7Date(t time.Time) string {
	return t.Format(HL7DateLayout)
}

// FromHL7Date parses an HL7v2 date/time token. Accepted lengths are 8
// (YYYYMMDD), 12 (YYYYMMDDHHmm) and 14 to 18 characters, of which the first
// 14 (YYYYMMDDHHmmss) are used; fractional seconds and anything else in the
// tail are ignored.
func FromHL7Date(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch n := len(s); {
	case n == 8:
		return time.Parse("20060102", s)
	case n == 12:
		return time.Parse("200601021504", s)
	case n >= 14 && n <= 18:
		return time.Parse(HL7DateLayout, s[:14])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
}
