package deid

import "strings"

// Gender is the administrative sex derived once per message from PID-8.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
	GenderOther
)

// ParseGender maps HL7 table 0001 codes (and spelled-out forms) to a Gender.
func ParseGender(code string) Gender {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "M", "MALE":
		return GenderMale
	case "F", "FEMALE":
		return GenderFemale
	case "O", "A", "N", "OTHER":
		return GenderOther
	default:
		return GenderUnknown
	}
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	case GenderOther:
		return "other"
	default:
		return "unknown"
	}
}
