package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/atgw/at"
)

// ErrInvalidMessage is returned by SendSMS for text that would end the
// submission early.
var ErrInvalidMessage = errors.New("message contains Ctrl-Z or ESC")

// ErrInvalidRecipient is returned by SendSMS for a recipient that cannot be
// quoted on the command line.
var ErrInvalidRecipient = errors.New("invalid recipient")

// SendSMS sends a text message to the specified recipient and returns the
// message reference assigned by the network.
//
// The message is sent in text mode (not PDU mode). The recipient should be
// in international format (e.g., "+1234567890").
//
// This method blocks until the message is accepted by the network or an error
// occurs. Network delivery (to the final recipient) happens asynchronously.
// Consecutive submissions are spaced by at least the configured minimum send
// interval.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) (int32, error) {
	if strings.ContainsAny(message, at.CtrlZ+"\x1b") {
		return 0, ErrInvalidMessage
	}
	if recipient == "" {
		return 0, ErrInvalidRecipient
	}
	if err := at.CheckString(recipient); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}

	cmd, err := buildCommand(func(buf []byte) ([]byte, error) {
		return at.CreateSet(buf, true).
			Named("+CMGS").
			WithStringParameter(recipient).
			FinishWith(at.CR)
	})
	if err != nil {
		return 0, err
	}

	if err := m.throttle(ctx); err != nil {
		return 0, err
	}

	// The prompt and the body belong to one exchange.
	m.txMu.Lock()
	defer m.txMu.Unlock()

	resp, err := m.exec(ctx, cmd)
	if err != nil {
		return 0, fmt.Errorf("AT+CMGS command failed: %w", err)
	}
	if !strings.HasSuffix(resp, at.Prompt) {
		return 0, fmt.Errorf("%w, got: %q", ErrNoPrompt, resp)
	}

	resp, err = m.exec(ctx, []byte(message+at.CtrlZ+at.CR))
	if err != nil {
		return 0, fmt.Errorf("SMS send failed: %w", err)
	}

	line, ok := responseLine(resp, "+CMGS:")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	fields, err := at.Parse(line).ExpectIdentifier("+CMGS:").ExpectIntParameter().Finish()
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", line, err)
	}
	ref, _ := fields.Int(0)

	m.logger.Debug("SMS accepted", "to", recipient, "reference", ref)
	return ref, nil
}

// throttle blocks until the minimum send interval since the previous
// submission has passed.
func (m *Modem) throttle(ctx context.Context) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if wait := time.Until(m.lastSend.Add(m.config.minSendInterval)); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	m.lastSend = time.Now()
	return nil
}

// NewMessage is the decoded form of a +CMTI URC.
type NewMessage struct {
	// Storage is the memory the message was stored in, e.g. "SM" or "ME".
	Storage string
	// Index is the location within Storage.
	Index int32
}

// ParseNewMessage decodes a +CMTI URC as delivered on the URC channel, e.g.
// `+CMTI: "SM",3`.
func ParseNewMessage(urc string) (NewMessage, error) {
	fields, err := at.Parse([]byte(urc)).
		ExpectIdentifier(at.UrcNewMsg).
		ExpectStringParameter().
		ExpectIntParameter().
		Finish()
	if err != nil {
		return NewMessage{}, fmt.Errorf("parse %q: %w", urc, err)
	}

	var msg NewMessage
	if err := fields.Scan(&msg.Storage, &msg.Index); err != nil {
		return NewMessage{}, err
	}
	return msg, nil
}
