// Package generator provides the built-in replacement value generators.
//
// Every generator is deterministic for a given seed and original value: the
// same name in two fields, or in two messages processed with the same seed,
// always maps to the same replacement. The seed is a secret; hosts draw one
// with RandomSeed unless a fixed seed is configured, so replacements differ
// between runs and cannot be reproduced from the output. Output follows the
// casing of the original value.
package generator

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/ehr/hl7deid/internal/platform/deid"
	"github.com/ehr/hl7deid/internal/platform/hl7v2"
)

// Names of the built-in generators.
const (
	TestGenerator1 = "Test_Generator1"
	TestGenerator2 = "Test_Generator2"
)

// Registrar receives generators; plugin.Registry implements it.
type Registrar interface {
	Register(g deid.Generator) error
}

// RegisterDefaults registers every built-in generator with reg. seed selects
// the replacement family; zero is a valid seed.
func RegisterDefaults(reg Registrar, seed int64) error {
	for _, g := range Defaults(seed) {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

// RandomSeed returns a seed read from crypto/rand.
func RandomSeed() int64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// Defaults returns the built-in generators for seed.
func Defaults(seed int64) []deid.Generator {
	s := source{seed: seed}
	return []deid.Generator{
		deid.NewGeneratorFunc(TestGenerator1, testGenerator1),
		deid.NewGeneratorFunc(TestGenerator2, testGenerator2),
		deid.NewGeneratorFunc(deid.TypeLastName, s.lastName),
		deid.NewGeneratorFunc(deid.TypeFirstName, s.firstName),
		deid.NewGeneratorFunc(deid.TypeMiddleName, s.middleName),
		deid.NewGeneratorFunc(deid.TypeAddress, s.address),
		deid.NewGeneratorFunc(deid.TypeCity, s.city),
		deid.NewGeneratorFunc(deid.TypePhone, s.digits),
		deid.NewGeneratorFunc(deid.TypeSSN, s.ssn),
		deid.NewGeneratorFunc(deid.TypeMRN, s.identifier),
		deid.NewGeneratorFunc(deid.TypeBirthDate, s.birthDate),
	}
}

func testGenerator1(item deid.Item, ctx deid.Context) (string, error) {
	return item.Value() + "_" + ctx.Type, nil
}

func testGenerator2(item deid.Item, _ deid.Context) (string, error) {
	return "Xa_" + item.Value() + "_aX", nil
}

// source derives a private random stream per original value.
type source struct {
	seed int64
}

func (s source) rand(value string) *rand.Rand {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(s.seed))
	h.Write(b[:])
	h.Write([]byte(strings.ToUpper(norm.NFC.String(strings.TrimSpace(value)))))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func pick(r *rand.Rand, pool []string) string {
	return pool[r.Intn(len(pool))]
}

func (s source) lastName(item deid.Item, _ deid.Context) (string, error) {
	v := item.Value()
	return matchCase(v, pick(s.rand(v), lastNames)), nil
}

func (s source) firstName(item deid.Item, ctx deid.Context) (string, error) {
	v := item.Value()
	return matchCase(v, pick(s.rand(v), firstNames(ctx.Gender))), nil
}

// middleName keeps initials as initials.
func (s source) middleName(item deid.Item, ctx deid.Context) (string, error) {
	v := item.Value()
	name := pick(s.rand(v), firstNames(ctx.Gender))
	if trimmed := strings.TrimSuffix(strings.TrimSpace(v), "."); len([]rune(trimmed)) == 1 {
		initial := string([]rune(name)[0])
		if strings.HasSuffix(v, ".") {
			initial += "."
		}
		return matchCase(v, initial), nil
	}
	return matchCase(v, name), nil
}

func (s source) address(item deid.Item, _ deid.Context) (string, error) {
	v := item.Value()
	r := s.rand(v)
	addr := fmt.Sprintf("%d %s %s", 100+r.Intn(9900), pick(r, streets), pick(r, streetSuffixes))
	return matchCase(v, addr), nil
}

func (s source) city(item deid.Item, _ deid.Context) (string, error) {
	v := item.Value()
	return matchCase(v, pick(s.rand(v), cities)), nil
}

// digits replaces every digit and keeps the punctuation, so phone numbers
// keep their layout.
func (s source) digits(item deid.Item, _ deid.Context) (string, error) {
	v := item.Value()
	r := s.rand(v)
	return strings.Map(func(c rune) rune {
		if unicode.IsDigit(c) {
			return rune('0' + r.Intn(10))
		}
		return c
	}, v), nil
}

// ssn produces a number in the 9xx area, which is never issued.
func (s source) ssn(item deid.Item, ctx deid.Context) (string, error) {
	out, _ := s.digits(item, ctx)
	i := strings.IndexFunc(out, unicode.IsDigit)
	if i < 0 {
		return out, nil
	}
	return out[:i] + "9" + out[i+1:], nil
}

// identifier keeps the shape of an identifier: digits stay digits and
// letters stay letters of the same case.
func (s source) identifier(item deid.Item, _ deid.Context) (string, error) {
	v := item.Value()
	r := s.rand(v)
	return strings.Map(func(c rune) rune {
		switch {
		case c >= '0' && c <= '9':
			return rune('0' + r.Intn(10))
		case c >= 'A' && c <= 'Z':
			return rune('A' + r.Intn(26))
		case c >= 'a' && c <= 'z':
			return rune('a' + r.Intn(26))
		default:
			return c
		}
	}, v), nil
}

// birthDate shifts the date by up to a year in either direction and keeps
// the precision of the original.
func (s source) birthDate(item deid.Item, _ deid.Context) (string, error) {
	v := strings.TrimSpace(item.Value())
	t, err := hl7v2.FromHL7Date(v)
	if err != nil {
		// The parse error quotes the date; reports must not carry it.
		return "", fmt.Errorf("unrecognized date (%d characters)", len(v))
	}
	r := s.rand(v)
	days := 1 + r.Intn(365)
	if r.Intn(2) == 0 {
		days = -days
	}
	out := hl7v2.ToHL7Date(t.AddDate(0, 0, days))
	return out[:min(len(v), len(out))], nil
}

func firstNames(g deid.Gender) []string {
	switch g {
	case deid.GenderMale:
		return maleNames
	case deid.GenderFemale:
		return femaleNames
	default:
		return neutralNames
	}
}

// matchCase renders generated in the casing of original: all upper, all
// lower, or title case for anything mixed. Casers keep state, so a fresh one
// is built per call.
func matchCase(original, generated string) string {
	hasUpper, hasLower := false, false
	for _, c := range original {
		hasUpper = hasUpper || unicode.IsUpper(c)
		hasLower = hasLower || unicode.IsLower(c)
	}
	switch {
	case hasUpper && !hasLower:
		return cases.Upper(language.Und).String(generated)
	case hasLower && !hasUpper:
		return cases.Lower(language.Und).String(generated)
	default:
		return cases.Title(language.Und).String(generated)
	}
}
