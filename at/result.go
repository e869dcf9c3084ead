package at

import (
	"errors"
	"strings"
)

// CheckResult decodes a final result line. OK yields nil; every other final
// result yields a *ResultError, which matches ErrCommandFailed.
//
// Extended errors are decoded in both numeric (+CMEE=1) and verbose
// (+CMEE=2) form:
//
//	+CME ERROR: 10          -> Code 10
//	+CME ERROR: SIM failure -> Code -1, Message "SIM failure"
func CheckResult(line string) error {
	buf := []byte(line)

	_, err := Parse(buf).ExpectIdentifier(OK).FinishOrMatch(CmeError, CmsError)
	if err == nil {
		if len(buf) == len(OK) {
			return nil
		}
		return &ResultError{Kind: line, Code: -1}
	}

	var resp *ResponseError
	if !errors.As(err, &resp) {
		return &ResultError{Kind: strings.TrimSpace(line), Code: -1}
	}

	p := Parse(buf).ExpectIdentifier(resp.Literal).ExpectIntParameter()
	if fields, err := p.Finish(); err == nil && p.Position() == len(buf) {
		code, _ := fields.Int(0)
		return &ResultError{Kind: resp.Literal, Code: code}
	}

	fields, err := Parse(buf).ExpectIdentifier(resp.Literal).ExpectRawString().Finish()
	if err != nil {
		return &ResultError{Kind: resp.Literal, Code: -1}
	}
	msg, _ := fields.Text(0)
	return &ResultError{Kind: resp.Literal, Code: -1, Message: strings.TrimSpace(msg)}
}
