package hl7v2

import "strings"

// Encoding holds the delimiter set declared by a message's MSH segment.
type Encoding struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	SubComponent byte
}

// DefaultEncoding is the classic |^~\& delimiter set.
var DefaultEncoding = Encoding{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	SubComponent: '&',
}

// encodingFromMSH reads the separators that follow the "MSH" name: MSH-1 is
// the field separator and MSH-2 lists component, repetition, escape and
// sub-component characters in that order. Missing characters keep their
// default.
func encodingFromMSH(line string) Encoding {
	enc := DefaultEncoding
	if len(line) < 4 {
		return enc
	}
	enc.Field = line[3]

	chars := line[4:]
	if i := strings.IndexByte(chars, enc.Field); i >= 0 {
		chars = chars[:i]
	}
	targets := []*byte{&enc.Component, &enc.Repetition, &enc.Escape, &enc.SubComponent}
	for i := 0; i < len(chars) && i < len(targets); i++ {
		*targets[i] = chars[i]
	}
	return enc
}

// Characters returns MSH-2 for this encoding.
func (e Encoding) Characters() string {
	return string([]byte{e.Component, e.Repetition, e.Escape, e.SubComponent})
}

func (e Encoding) sequences() []struct {
	code byte
	char byte
} {
	return []struct {
		code byte
		char byte
	}{
		{'F', e.Field},
		{'S', e.Component},
		{'T', e.SubComponent},
		{'R', e.Repetition},
		{'E', e.Escape},
	}
}

// Unescape replaces the \F\ \S\ \T\ \R\ \E\ escape sequences with the
// delimiter characters they stand for.
func Unescape(s string, enc Encoding) string {
	if strings.IndexByte(s, enc.Escape) < 0 {
		return s
	}

	esc := enc.Escape
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == esc && i+2 < len(s) && s[i+2] == esc {
			if ch, ok := unescapeCode(s[i+1], enc); ok {
				b.WriteByte(ch)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unescapeCode(code byte, enc Encoding) (byte, bool) {
	for _, seq := range enc.sequences() {
		if seq.code == code {
			return seq.char, true
		}
	}
	return 0, false
}

// Escape is the inverse of Unescape: every delimiter character in s is
// replaced with its escape sequence so the result can be embedded in a
// component without changing the message structure.
func Escape(s string, enc Encoding) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		written := false
		for _, seq := range enc.sequences() {
			if s[i] == seq.char {
				b.WriteByte(enc.Escape)
				b.WriteByte(seq.code)
				b.WriteByte(enc.Escape)
				written = true
				break
			}
		}
		if !written {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Unescaped returns the component value with escape sequences decoded.
func (c *Component) Unescaped(enc Encoding) string {
	return Unescape(c.Value(), enc)
}
