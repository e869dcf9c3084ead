package modem

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/atgw/at"
)

// SignalQuality runs AT+CSQ. rssi is 0-31 or 99 when unknown; ber is 0-7 or
// 99 when unknown.
func (m *Modem) SignalQuality(ctx context.Context) (rssi, ber int32, err error) {
	fields, err := m.query(ctx, cmdSignal, "+CSQ:", func(p at.Parser) at.Parser {
		return p.ExpectIntParameter().ExpectIntParameter()
	})
	if err != nil {
		return 0, 0, err
	}
	err = fields.Scan(&rssi, &ber)
	return rssi, ber, err
}

// Registration runs AT+CREG? and returns the unsolicited result mode and the
// registration status (1 home, 5 roaming).
func (m *Modem) Registration(ctx context.Context) (mode, stat int32, err error) {
	fields, err := m.query(ctx, cmdRegistration, "+CREG:", func(p at.Parser) at.Parser {
		return p.ExpectIntParameter().ExpectIntParameter()
	})
	if err != nil {
		return 0, 0, err
	}
	err = fields.Scan(&mode, &stat)
	return mode, stat, err
}

// Revision runs AT+CGMR and returns the firmware revision. Modems that
// answer with a "+CGMR:" prefix or a "Revision:" label have it removed.
func (m *Modem) Revision(ctx context.Context) (string, error) {
	resp, err := m.Exec(ctx, cmdRevision)
	if err != nil {
		return "", err
	}

	lines := strings.Split(resp, "\n")
	if len(lines) < 2 {
		return "", fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	line := []byte(lines[len(lines)-2])

	p := at.Parse(line)
	for _, label := range []string{"+CGMR:", "Revision:"} {
		if strings.HasPrefix(string(line), label) {
			p = p.ExpectIdentifier(label)
			break
		}
	}
	fields, err := p.ExpectRawString().Finish()
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", line, err)
	}
	rev, _ := fields.Text(0)
	return rev, nil
}

// query executes cmd and parses the response line starting with prefix:
// the prefix is matched, then expect reads the values after it.
func (m *Modem) query(ctx context.Context, cmd []byte, prefix string, expect func(at.Parser) at.Parser) (at.Fields, error) {
	resp, err := m.Exec(ctx, cmd)
	if err != nil {
		return at.Fields{}, err
	}
	line, ok := responseLine(resp, prefix)
	if !ok {
		return at.Fields{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	fields, err := expect(at.Parse(line).ExpectIdentifier(prefix)).Finish()
	if err != nil {
		return at.Fields{}, fmt.Errorf("parse %q: %w", line, err)
	}
	return fields, nil
}
