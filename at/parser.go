package at

import (
	"bytes"
	"unicode/utf8"
)

// Parser matches a response buffer against a sequence of expected tokens.
//
// Every method returns an updated copy. Once a step fails the parser is
// invalid: later steps do nothing except record a zero value, so a whole chain
// can be written without checking errors in between. Finish reports the
// offset at which the first failure happened.
type Parser struct {
	buf    []byte
	pos    int
	valid  bool
	fields Fields
}

// Parse starts parsing buf from offset 0.
func Parse(buf []byte) Parser {
	return Parser{buf: buf, valid: true}
}

// ExpectIdentifier requires the literal id at the cursor, then skips spaces.
func (p Parser) ExpectIdentifier(id string) Parser {
	if !p.valid {
		return p
	}
	if len(p.buf)-p.pos < len(id) {
		p.valid = false
		return p
	}

	p.valid = string(p.buf[p.pos:p.pos+len(id)]) == id
	p.pos += len(id)
	return p.trimSpace()
}

// ExpectIntParameter reads a decimal integer, with an optional leading '+'
// or '-', and the comma after it if there is one.
func (p Parser) ExpectIntParameter() Parser {
	if !p.valid {
		return p.push(IntField(0))
	}

	end := p.pos
	for end < len(p.buf) && isIntByte(p.buf[end]) {
		end++
	}
	span := p.buf[p.pos:end]
	if len(span) == 0 {
		p.valid = false
		return p.push(IntField(0))
	}
	if span[0] == '+' {
		span = span[1:]
	}

	v, ok := ParseInt(span)
	p.pos = p.skipComma(end)
	if !ok {
		p.valid = false
		return p.push(IntField(0))
	}
	return p.push(IntField(v)).trimSpace()
}

// ExpectStringParameter reads a double quoted string and the comma after it
// if there is one. The opening quote must be at the current position. The
// value excludes the quotes; quotes cannot be escaped.
func (p Parser) ExpectStringParameter() Parser {
	if !p.valid {
		return p.push(TextField(nil))
	}
	if p.pos >= len(p.buf) || p.buf[p.pos] != '"' {
		p.valid = false
		return p.push(TextField(nil))
	}

	closing := bytes.IndexByte(p.buf[p.pos+1:], '"')
	if closing < 0 {
		p.valid = false
		return p.push(TextField(nil))
	}
	start := p.pos + 1
	end := start + closing

	value := p.buf[start:end]
	p.pos = p.skipComma(end + 1)
	if !utf8.Valid(value) {
		p.valid = false
		return p.push(TextField(nil))
	}
	return p.push(TextField(value)).trimSpace()
}

// ExpectRawString reads unquoted text up to the next control character, such
// as the CR of a line ending, or the end of the buffer.
func (p Parser) ExpectRawString() Parser {
	if !p.valid {
		return p.push(TextField(nil))
	}

	end := p.pos
	for end < len(p.buf) && !isControl(p.buf[end]) {
		end++
	}

	value := p.buf[p.pos:end]
	p.pos = end
	if !utf8.Valid(value) {
		p.valid = false
		return p.push(TextField(nil))
	}
	return p.push(TextField(value)).trimSpace()
}

// Finish returns the collected fields, or a *ParseError holding the offset at
// which the input stopped matching.
func (p Parser) Finish() (Fields, error) {
	if !p.valid {
		return Fields{}, &ParseError{Position: p.pos}
	}
	return p.fields, nil
}

// FinishOrMatch is Finish for responses that either match the expected
// grammar or start with one of several known error literals. When the grammar
// did not match, the literals are tried against the start of the buffer and
// the first hit is returned as a *ResponseError. With no hit the result is
// the same *ParseError Finish would return.
func (p Parser) FinishOrMatch(errorLiterals ...string) (Fields, error) {
	fields, err := p.Finish()
	if err == nil {
		return fields, nil
	}
	for i, lit := range errorLiterals {
		if len(p.buf) >= len(lit) && string(p.buf[:len(lit)]) == lit {
			return Fields{}, &ResponseError{Index: i, Literal: lit, Position: p.pos}
		}
	}
	return Fields{}, err
}

// Position is the current cursor offset.
func (p Parser) Position() int {
	return p.pos
}

// Valid reports whether every step so far matched.
func (p Parser) Valid() bool {
	return p.valid
}

func (p Parser) push(f Field) Parser {
	p.fields = p.fields.with(f)
	return p
}

func (p Parser) skipComma(i int) int {
	if i < len(p.buf) && p.buf[i] == ',' {
		return i + 1
	}
	return i
}

func (p Parser) trimSpace() Parser {
	if !p.valid {
		return p
	}
	for p.pos < len(p.buf) && p.buf[p.pos] == ' ' {
		p.pos++
	}
	return p
}

func isIntByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+'
}

func isControl(c byte) bool {
	return c < 0x20 || c == 0x7f
}
