package at

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"strings"
)

// MaxLineLength bounds a single response line read by NewScanner. Longer
// lines stop the scanner with bufio.ErrTooLong.
const MaxLineLength = 4096

var (
	crlf   = []byte(CRLF)
	prompt = []byte(Prompt)
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings and also
// recognizes the SMS input prompt ("> ").
//
// Important: This splitter assumes "No Echo" mode (ATE0). If echo is enabled,
// command echoes come through as ordinary data lines.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, prompt) {
		return len(prompt), data[:len(prompt)], nil
	}

	if i := bytes.Index(data, crlf); i >= 0 {
		return i + len(crlf), data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// NewScanner returns a scanner that tokenizes r with Splitter.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), MaxLineLength)
	scanner.Split(Splitter)
	return scanner
}

// Classify identifies the nature of a single modem output line.
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}
	if slices.Contains(finalResults, line) {
		return TypeFinal
	}

	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), strings.HasPrefix(line, UrcMessageReport), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}
