package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/atgw/at"
)

// Modem drives a cellular modem over a Transport. All reads from the
// transport happen in Loop; callers hand commands to it through Exec and the
// helpers built on Exec, so they are safe to use from several goroutines.
type Modem struct {
	transport Transport
	config    Config
	logger    *slog.Logger

	// scanner frames the transport for init and then for Loop, so bytes read
	// past one response stay buffered for the next reader.
	scanner *bufio.Scanner

	closed      atomic.Bool
	loopRunning atomic.Bool

	// txMu keeps multi-step exchanges such as SMS submission from being
	// interleaved with other commands.
	txMu sync.Mutex

	sendMu   sync.Mutex
	lastSend time.Time

	urcChan  chan string
	commands chan *commandRequest

	// loopCtx ends Loop when the modem is closed.
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

type commandRequest struct {
	// cmd is written to the transport as is, terminator included
	cmd      []byte
	respChan chan commandResponse
	ctx      context.Context
}

type commandResponse struct {
	// response holds every line of the response, final result included,
	// joined by "\n"
	response string
	err      error
}

// response collects the lines answering one command.
type response struct {
	lines []string
}

// add records line and reports whether it completes the response. err is
// the outcome of the command once it is complete. URCs are not part of any
// response and must be filtered out by the caller.
func (r *response) add(line string) (done bool, err error) {
	switch at.Classify(line) {
	case at.TypeFinal:
		r.lines = append(r.lines, line)
		return true, at.CheckResult(line)
	case at.TypePrompt:
		// The modem waits for input after the prompt: nothing else follows.
		r.lines = append(r.lines, line)
		return true, nil
	case at.TypeData:
		r.lines = append(r.lines, line)
	}
	return false, nil
}

func (r *response) String() string {
	return strings.Join(r.lines, "\n")
}

// pollSettings bounds how long init waits for the SIM after the PIN.
type pollSettings struct {
	interval   time.Duration
	timeout    time.Duration
	maxRetries int
}

// New dials the modem and brings it into a known state: echo off, verbose
// errors, SIM unlocked and SMS text mode. The exchange runs directly on the
// transport, before Loop is started, and is bounded by the configured init
// timeout.
//
// The transport is closed again if initialization fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	m := &Modem{
		config:    config,
		logger:    config.logger,
		transport: transport,
		scanner:   at.NewScanner(transport),
		urcChan:   make(chan string, 100),
		commands:  make(chan *commandRequest),
	}
	m.loopCtx, m.loopCancel = context.WithCancel(ctx)

	initCtx, cancel := context.WithTimeout(ctx, config.initTimeout)
	defer cancel()

	if err := m.init(initCtx); err != nil {
		m.loopCancel()
		if transport != nil {
			transport.Close()
		}
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// Loop owns the read side of the transport. It writes queued commands,
// collects their response lines up to the final result or the SMS prompt,
// and forwards URCs to the URC channel whenever they arrive.
//
// Run it in its own goroutine after New:
//
//	m, err := modem.New(ctx, config)
//	if err != nil {
//		return err
//	}
//	go m.Loop(ctx)
//
//	resp, err := m.Exec(ctx, []byte("AT+CSQ\r"))
//
// A command whose context ends before its final result is answered with a
// timeout error. The lines the modem still sends for it, up to its final
// result or prompt, are discarded rather than handed to the next command.
//
// Loop returns when ctx is done, the modem is closed, or reading fails; at
// EOF it returns io.EOF. A second concurrent call returns ErrLoopRunning.
func (m *Modem) Loop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.loopCtx, cancel)
	defer stop()

	tokens, scanErrs := m.readLines(ctx)

	var (
		current *commandRequest
		resp    response
		// stale counts abandoned commands whose final result is still due.
		stale int
	)
	reply := func(err error) {
		current.respChan <- commandResponse{response: resp.String(), err: err}
		current = nil
		resp = response{}
	}
	abandon := func() {
		m.logger.Warn("AT command timed out", "command", printable(current.cmd))
		reply(fmt.Errorf("command timeout: %w", context.Cause(current.ctx)))
		stale++
	}
	fail := func(err error) error {
		if current != nil {
			reply(fmt.Errorf("read error: %w", err))
		}
		return fmt.Errorf("scanner error: %w", lineError(err))
	}

	for {
		var expired <-chan struct{}
		if current != nil {
			expired = current.ctx.Done()
		}

		select {
		case <-ctx.Done():
			if current != nil {
				reply(ctx.Err())
			}
			return ctx.Err()

		case <-expired:
			abandon()

		case req := <-m.commands:
			if current != nil {
				abandon()
			}
			current = req
			resp = response{}

			m.logger.Debug("Sending AT command", "command", printable(req.cmd))
			if _, err := m.transport.Write(req.cmd); err != nil {
				reply(fmt.Errorf("write command %q: %w", printable(req.cmd), err))
			}

		case token, ok := <-tokens:
			if !ok {
				if err := ctx.Err(); err != nil {
					if current != nil {
						reply(err)
					}
					return err
				}
				// A pending read error takes precedence over plain EOF.
				select {
				case err := <-scanErrs:
					return fail(err)
				default:
				}
				if current != nil {
					reply(io.EOF)
				}
				return io.EOF
			}

			m.logger.Debug("Received line", "line", token)

			switch kind := at.Classify(token); {
			case kind == at.TypeURC:
				m.dispatchURC(token)
			case stale > 0:
				if kind == at.TypeFinal || kind == at.TypePrompt {
					stale--
					m.logger.Debug("Discarded late reply", "line", token)
				}
			case current != nil:
				if done, err := resp.add(token); done {
					reply(err)
				}
			}

		case err := <-scanErrs:
			return fail(err)
		}
	}
}

// readLines scans the transport in its own goroutine. Empty lines are
// dropped. The tokens channel is closed when scanning stops; a read error
// is delivered on the second channel first.
func (m *Modem) readLines(ctx context.Context) (<-chan string, <-chan error) {
	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)
	scanner := m.scanner

	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token == "" {
				continue
			}
			select {
			case tokens <- token:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	return tokens, scanErrs
}

func (m *Modem) dispatchURC(urc string) {
	select {
	case m.urcChan <- urc:
	default:
		m.logger.Warn("URC channel full, dropping URC", "urc", urc)
	}
}

// URC returns the channel Loop forwards unsolicited result codes to, such as
// "+CMTI: ..." or "RING". It is buffered; when nobody drains it, further URCs
// are dropped and logged.
func (m *Modem) URC() <-chan string {
	return m.urcChan
}

// Close stops Loop and closes the transport. A modem cannot be reused after
// Close; a second call returns ErrAlreadyClosed.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}

	if m.loopCancel != nil {
		m.loopCancel()
	}

	if m.transport != nil {
		return m.transport.Close()
	}

	return nil
}

// Exec sends a complete command, terminator included, and waits for the
// final result. The response holds every line the modem sent for it joined
// by "\n". A final result other than OK is returned as an error matching
// at.ErrCommandFailed, together with the response.
//
// Loop must be running.
func (m *Modem) Exec(ctx context.Context, cmd []byte) (string, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.exec(ctx, cmd)
}

func (m *Modem) init(ctx context.Context) error {
	if err := m.expectOkDirect(ctx, cmdAT); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if err := m.expectOkDirect(ctx, cmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	if err := m.expectOkDirect(ctx, cmdVerboseErrors); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}

	simStatus, err := m.simStatus(ctx)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch simStatus {
	case at.SimReady:

	case at.SimPin:
		if m.config.simPIN == "" {
			return ErrSIMPinRequired
		}
		if err := at.CheckString(m.config.simPIN); err != nil {
			return fmt.Errorf("SIM PIN: %w", err)
		}
		cmd, err := buildCommand(func(buf []byte) ([]byte, error) {
			return at.CreateSet(buf, true).
				Named("+CPIN").
				WithStringParameter(m.config.simPIN).
				FinishWith(at.CR)
		})
		if err != nil {
			return err
		}
		if err := m.expectOkDirect(ctx, cmd); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}

		if err := m.waitForSIMReady(ctx, pollSettings{
			interval:   m.config.pollInterval,
			maxRetries: m.config.maxRetries,
		}); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported SIM state: %q", simStatus)
	}

	if err := m.expectOkDirect(ctx, cmdTextMode); err != nil {
		return fmt.Errorf("set SMS text mode: %w", err)
	}

	m.logger.Info("Modem initialized")
	return nil
}

// exec hands cmd to Loop and waits for its reply. Without a deadline on ctx
// the configured AT timeout applies.
func (m *Modem) exec(ctx context.Context, cmd []byte) (string, error) {
	if m.closed.Load() {
		return "", ErrAlreadyClosed
	}
	if m.transport == nil {
		return "", ErrNotInitialized
	}

	ctx, cancel := m.withATTimeout(ctx)
	defer cancel()

	req := &commandRequest{
		cmd:      cmd,
		respChan: make(chan commandResponse, 1),
		ctx:      ctx,
	}

	select {
	case m.commands <- req:
	case <-ctx.Done():
		return "", fmt.Errorf("command cancelled before sending: %w", ctx.Err())
	}

	select {
	case resp := <-req.respChan:
		return resp.response, resp.err
	case <-ctx.Done():
		return "", fmt.Errorf("command timeout: %w", ctx.Err())
	}
}

// execDirect runs one command on the transport without Loop. Only init uses
// it, before Loop starts; URCs seen meanwhile go to the URC channel.
func (m *Modem) execDirect(ctx context.Context, cmd []byte) (string, error) {
	if m.closed.Load() {
		return "", ErrAlreadyClosed
	}
	if m.transport == nil {
		return "", ErrNotInitialized
	}

	ctx, cancel := m.withATTimeout(ctx)
	defer cancel()

	m.logger.Debug("Sending AT command", "command", printable(cmd))
	if _, err := m.transport.Write(cmd); err != nil {
		return "", fmt.Errorf("write command %q: %w", printable(cmd), err)
	}

	scanner := m.scanner
	var resp response

	for {
		if err := ctx.Err(); err != nil {
			return resp.String(), err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return resp.String(), fmt.Errorf("read error: %w", lineError(err))
			}
			return resp.String(), io.EOF
		}

		token := scanner.Text()
		if token == "" {
			continue
		}
		if at.Classify(token) == at.TypeURC {
			m.dispatchURC(token)
			continue
		}
		if done, err := resp.add(token); done {
			return resp.String(), err
		}
	}
}

func (m *Modem) withATTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || m.config.atTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.atTimeout)
}

func (m *Modem) expectOkDirect(ctx context.Context, cmd []byte) error {
	_, err := m.execDirect(ctx, cmd)
	return err
}

// simStatus returns the +CPIN state, e.g. "READY" or "SIM PIN".
func (m *Modem) simStatus(ctx context.Context) (string, error) {
	resp, err := m.execDirect(ctx, cmdSimStatus)
	if err != nil {
		return "", err
	}
	line, ok := responseLine(resp, "+CPIN:")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	fields, err := at.Parse(line).ExpectIdentifier("+CPIN:").ExpectRawString().Finish()
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", line, err)
	}
	state, _ := fields.Text(0)
	return state, nil
}

// waitForSIMReady polls +CPIN? until the SIM reports READY. Status queries
// that fail are retried, except on a closed or uninitialized modem.
func (m *Modem) waitForSIMReady(ctx context.Context, poll pollSettings) error {
	if poll.interval <= 0 {
		poll.interval = 500 * time.Millisecond
	}
	if poll.timeout <= 0 {
		poll.timeout = 30 * time.Second
	}
	if poll.maxRetries <= 0 {
		poll.maxRetries = int(poll.timeout / poll.interval)
	}

	ticker := time.NewTicker(poll.interval)
	defer ticker.Stop()

	for retries := 1; ; retries++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("SIM not ready: %w", ctx.Err())
		case <-ticker.C:
		}

		if retries > poll.maxRetries {
			return fmt.Errorf("SIM not ready after %d retries", poll.maxRetries)
		}
		state, err := m.simStatus(ctx)
		if err != nil {
			if errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrNotInitialized) {
				return fmt.Errorf("SIM status check failed: %w", err)
			}
			m.logger.Debug("SIM status check failed", "error", err, "retry", retries)
			continue
		}
		if state == at.SimReady {
			return nil
		}
	}
}

func lineError(err error) error {
	if errors.Is(err, bufio.ErrTooLong) {
		return fmt.Errorf("%w: %w", ErrLineTooLong, err)
	}
	return err
}

// printable renders a command for logs and errors without its line ending.
func printable(cmd []byte) string {
	return strings.TrimRight(string(cmd), "\r\n")
}
