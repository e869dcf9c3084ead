package modem_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"go.uber.org/mock/gomock"

	"i4.energy/across/atgw/modem"
)

// scriptedTransport simulates a modem that answers each written command from
// a script. Reads block until a reply is queued, like a real serial port,
// so it can back a running Loop.
type scriptedTransport struct {
	mu       sync.Mutex
	script   map[string][]string
	written  []string
	readChan chan []byte
	closed   bool
}

// initScript answers the initialization sequence of a modem with an
// unlocked SIM.
func initScript() map[string][]string {
	return map[string][]string{
		"AT\r":        {"OK\r\n"},
		"ATE0\r":      {"OK\r\n"},
		"AT+CMEE=2\r": {"OK\r\n"},
		"AT+CPIN?\r":  {"+CPIN: READY\r\nOK\r\n"},
		"AT+CMGF=1\r": {"OK\r\n"},
	}
}

// newScriptedTransport answers commands from script. A command with several
// replies gets them in order; the last one repeats. Unknown commands get
// ERROR.
func newScriptedTransport(script map[string][]string) *scriptedTransport {
	return &scriptedTransport{
		script:   script,
		readChan: make(chan []byte, 16),
	}
}

func (t *scriptedTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	cmd := string(p)
	t.written = append(t.written, cmd)

	reply := "ERROR\r\n"
	if replies := t.script[cmd]; len(replies) > 0 {
		reply = replies[0]
		if len(replies) > 1 {
			t.script[cmd] = replies[1:]
		}
	}
	t.readChan <- []byte(reply)
	return len(p), nil
}

func (t *scriptedTransport) Read(p []byte) (int, error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *scriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues unsolicited data, as if the modem emitted a URC.
func (t *scriptedTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

func (t *scriptedTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

// startModem initializes a modem over transport and runs its Loop until the
// test ends.
func startModem(t *testing.T, transport modem.Transport, opts ...func(*modem.ConfigBuilder)) *modem.Modem {
	t.Helper()

	ctrl := gomock.NewController(t)
	dialer := modem.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil)

	builder := modem.NewConfigBuilder().WithDialer(dialer)
	for _, opt := range opts {
		opt(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m, err := modem.New(ctx, config)
	if err != nil {
		cancel()
		t.Fatalf("failed to create modem: %v", err)
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- m.Loop(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		m.Close()
		<-loopDone
	})
	return m
}
