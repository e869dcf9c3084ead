package at

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the shape of a command: what follows the name and whether it takes
// parameters.
type Kind int

const (
	KindExecute Kind = iota // AT<name>
	KindTest                // AT<name>=?
	KindQuery               // AT<name>?
	KindSet                 // AT<name>=<params>
)

var kindNames = [...]string{
	KindExecute: "execute",
	KindTest:    "test",
	KindQuery:   "query",
	KindSet:     "set",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps "execute", "test", "query" or "set" to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Param is one set command parameter. The zero value is an omitted
// (empty) parameter.
//
// In JSON a number is an int parameter, a string is a quoted parameter, null
// is an empty parameter and {"raw": "..."} is written unquoted.
type Param struct {
	Int  *int32
	Text *string
	Raw  []byte
}

func IntParam(v int32) Param { return Param{Int: &v} }
func StringParam(v string) Param { return Param{Text: &v} }
func RawParam(v []byte) Param { return Param{Raw: v} }

func (p Param) String() string {
	switch {
	case p.Int != nil:
		return fmt.Sprint(*p.Int)
	case p.Text != nil:
		return fmt.Sprintf("%q", *p.Text)
	case p.Raw != nil:
		return string(p.Raw)
	default:
		return ""
	}
}

type rawParam struct {
	Raw string `json:"raw"`
}

func (p Param) MarshalJSON() ([]byte, error) {
	switch {
	case p.Int != nil:
		return json.Marshal(*p.Int)
	case p.Text != nil:
		return json.Marshal(*p.Text)
	case p.Raw != nil:
		return json.Marshal(rawParam{Raw: string(p.Raw)})
	default:
		return []byte("null"), nil
	}
}

func (p *Param) UnmarshalJSON(b []byte) error {
	*p = Param{}
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.Text = &s
		return nil
	case len(b) > 0 && b[0] == '{':
		var r rawParam
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		p.Raw = []byte(r.Raw)
		return nil
	default:
		var v int32
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("at: parameter %s: %w", b, err)
		}
		p.Int = &v
		return nil
	}
}

// Request describes a command as data, for callers that only know its shape
// at run time.
type Request struct {
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name"`
	Params   []Param `json:"params,omitempty"`
	NoPrefix bool    `json:"no_prefix,omitempty"`
}

// Build writes the command into buf using the staged builder and terminates
// it with terminator. Errors are those of FinishWith, plus
// ErrParamsNotAllowed.
func (r Request) Build(buf []byte, terminator string) ([]byte, error) {
	prefix := !r.NoPrefix
	if r.Kind != KindSet && len(r.Params) > 0 {
		return nil, fmt.Errorf("%w: %s command %s", ErrParamsNotAllowed, r.Kind, r.Name)
	}

	switch r.Kind {
	case KindExecute:
		return CreateExecute(buf, prefix).Named(r.Name).FinishWith(terminator)
	case KindTest:
		return CreateTest(buf, prefix).Named(r.Name).FinishWith(terminator)
	case KindQuery:
		return CreateQuery(buf, prefix).Named(r.Name).FinishWith(terminator)
	case KindSet:
		cmd := CreateSet(buf, prefix).Named(r.Name)
		for _, p := range r.Params {
			switch {
			case p.Int != nil:
				cmd = cmd.WithIntParameter(*p.Int)
			case p.Text != nil:
				if err := CheckString(*p.Text); err != nil {
					return nil, err
				}
				cmd = cmd.WithStringParameter(*p.Text)
			case p.Raw != nil:
				cmd = cmd.WithRawParameter(p.Raw)
			default:
				cmd = cmd.WithEmptyParameter()
			}
		}
		return cmd.FinishWith(terminator)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(r.Kind))
	}
}

// CheckString reports whether v can be sent as a quoted string parameter.
func CheckString(v string) error {
	if strings.ContainsAny(v, "\"\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidParameter, v)
	}
	return nil
}

// BuildAlloc builds the command into a fresh buffer of the exact size.
func (r Request) BuildAlloc(terminator string) ([]byte, error) {
	var probe [64]byte
	cmd, err := r.Build(probe[:], terminator)
	if err == nil {
		return bytes.Clone(cmd), nil
	}
	var tooSmall *BufferTooSmallError
	if !errors.As(err, &tooSmall) {
		return nil, err
	}
	return r.Build(make([]byte, tooSmall.Required), terminator)
}
