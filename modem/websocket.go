package modem

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a WebSocket transport
// whose connection has already failed.
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketDialer opens a modem that sits behind a serial-to-WebSocket
// bridge. Modem bytes travel in binary messages in both directions; text
// messages are ignored.
type WebSocketDialer struct {
	// URL is the ws:// or wss:// endpoint of the bridge.
	URL string
	// Username and Password, when both set, are sent as HTTP Basic auth.
	Username string
	Password string
	// InsecureSkipVerify disables certificate checks for wss://.
	InsecureSkipVerify bool
	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration
}

func (d WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("modem: invalid websocket URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("modem: unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: d.InsecureSkipVerify}
	}

	headers := http.Header{}
	if d.Username != "" && d.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("modem: websocket handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("modem: websocket dial: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

// wsTransport adapts a message oriented WebSocket connection to a byte
// stream. Reads drain the current binary message before fetching the next.
type wsTransport struct {
	conn *websocket.Conn

	// gorilla allows one concurrent writer; Loop and exec may both write.
	writeMu sync.Mutex

	buf    []byte
	closed bool
}

func (w *wsTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	}
}

func (w *wsTransport) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
