package modem

import (
	"errors"
	"strings"

	"i4.energy/across/atgw/at"
)

// Fixed commands sent by the modem itself, built once.
var (
	cmdAT            = mustCommand(at.Request{Kind: at.KindExecute})
	cmdEchoOff       = mustCommand(at.Request{Kind: at.KindExecute, Name: "E0"})
	cmdVerboseErrors = mustCommand(at.Request{Kind: at.KindSet, Name: "+CMEE", Params: []at.Param{at.IntParam(2)}})
	cmdSimStatus     = mustCommand(at.Request{Kind: at.KindQuery, Name: "+CPIN"})
	cmdTextMode      = mustCommand(at.Request{Kind: at.KindSet, Name: "+CMGF", Params: []at.Param{at.IntParam(1)}})
	cmdSignal        = mustCommand(at.Request{Kind: at.KindExecute, Name: "+CSQ"})
	cmdRegistration  = mustCommand(at.Request{Kind: at.KindQuery, Name: "+CREG"})
	cmdRevision      = mustCommand(at.Request{Kind: at.KindExecute, Name: "+CGMR"})
)

func mustCommand(req at.Request) []byte {
	cmd, err := req.BuildAlloc(at.CR)
	if err != nil {
		panic("modem: " + err.Error())
	}
	return cmd
}

// commandSize covers every command the modem builds except those carrying
// long caller supplied strings.
const commandSize = 64

// buildCommand runs build against a commandSize buffer and, if that is too
// small, once more against a buffer of exactly the size the builder reported.
func buildCommand(build func(buf []byte) ([]byte, error)) ([]byte, error) {
	cmd, err := build(make([]byte, commandSize))
	var tooSmall *at.BufferTooSmallError
	if errors.As(err, &tooSmall) {
		return build(make([]byte, tooSmall.Required))
	}
	return cmd, err
}

// responseLine returns the first line of resp starting with prefix.
func responseLine(resp, prefix string) ([]byte, bool) {
	for line := range strings.Lines(resp) {
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, prefix) {
			return []byte(line), true
		}
	}
	return nil, false
}
