package modem_test

import (
	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/atgw/modem"
)

// initMockCalls expects the initialization sequence of a modem whose SIM is
// already unlocked.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).
		AT().
		EchoOff().
		VerboseErrors().
		SimReady().
		SMSTextMode().
		Build()
}

// MockSequenceBuilder records ordered command/reply exchanges on a
// MockTransport, for use with gomock.InOrder.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{transport: transport}
}

// Exchange expects cmd to be written and answers it with reply in a single
// read.
func (b *MockSequenceBuilder) Exchange(cmd, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, reply), nil
		}),
	)
	return b
}

// The first two replies still carry the echo, as a modem does before ATE0
// takes effect.
func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Exchange("AT\r", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Exchange("ATE0\r", "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) VerboseErrors() *MockSequenceBuilder {
	return b.Exchange("AT+CMEE=2\r", "OK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?\r", "+CPIN: SIM PIN\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?\r", "+CPIN: READY\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EnterPIN(pin string) *MockSequenceBuilder {
	return b.Exchange(`AT+CPIN="`+pin+`"`+"\r", "OK\r\n")
}

func (b *MockSequenceBuilder) SMSTextMode() *MockSequenceBuilder {
	return b.Exchange("AT+CMGF=1\r", "OK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
