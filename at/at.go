// Package at builds and parses AT command strings inside caller-owned buffers.
//
// Commands are assembled with a staged builder that only exposes the calls that
// are legal at each step:
//
//	buf := make([]byte, 64)
//	cmd, err := at.CreateSet(buf, true).
//		Named("+CMGF").
//		WithIntParameter(1).
//		FinishWith(at.CR)
//
// Responses are decoded with a fluent parser that collapses to a no-op once a
// step fails and reports where it diverged:
//
//	fields, err := at.Parse([]byte("+CSQ: 15,99\r\nOK\r\n")).
//		ExpectIdentifier("+CSQ:").
//		ExpectIntParameter().
//		ExpectIntParameter().
//		ExpectIdentifier("\r\nOK\r\n").
//		Finish()
//
// Neither the builder nor the parser allocates; both only touch the buffer
// they were given.
package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	CtrlZ  = "\x1a"
	Prompt = "> "

	// Prefix written in front of the command name when requested.
	Prefix = "AT"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcMessageReport  = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"

	// SIM states reported by +CPIN?
	SimReady = "READY"
	SimPin   = "SIM PIN"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// finalResults lists the bare result codes that end a command, in the order
// CheckResult reports them.
var finalResults = []string{OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer}
