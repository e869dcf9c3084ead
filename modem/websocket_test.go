package modem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// bridge answers every binary frame the way a serial-to-WebSocket bridge in
// front of a modem would: a text frame that must be ignored, then the reply
// split across two binary frames.
func bridge(t *testing.T, wantAuth string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user+":"+pass != wantAuth {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) != "AT\r" {
				continue
			}
			conn.WriteMessage(websocket.TextMessage, []byte("bridge: ok"))
			conn.WriteMessage(websocket.BinaryMessage, []byte("O"))
			conn.WriteMessage(websocket.BinaryMessage, []byte("K\r\n"))
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebSocketDialer_RoundTrip(t *testing.T) {
	srv := bridge(t, "user:secret")
	defer srv.Close()

	transport, err := WebSocketDialer{URL: wsURL(srv), Username: "user", Password: "secret"}.Dial(context.Background())
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer transport.Close()

	if _, err := transport.Write([]byte("AT\r")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	var got []byte
	buf := make([]byte, 2)
	for len(got) < len("OK\r\n") {
		n, err := transport.Read(buf)
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "OK\r\n" {
		t.Errorf("expected OK\\r\\n, got %q", got)
	}
}

func TestWebSocketDialer_Unauthorized(t *testing.T) {
	srv := bridge(t, "user:secret")
	defer srv.Close()

	transport, err := WebSocketDialer{URL: wsURL(srv)}.Dial(context.Background())
	if err == nil {
		transport.Close()
		t.Fatal("expected handshake to fail without credentials")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("expected status in error, got: %v", err)
	}
}

func TestWebSocketDialer_BadScheme(t *testing.T) {
	_, err := WebSocketDialer{URL: "http://localhost:1"}.Dial(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("expected scheme error, got: %v", err)
	}
}

func TestWebSocketDialer_ReadAfterClose(t *testing.T) {
	srv := bridge(t, "")
	defer srv.Close()

	transport, err := WebSocketDialer{URL: wsURL(srv)}.Dial(context.Background())
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	buf := make([]byte, 8)
	if _, err := transport.Read(buf); err == nil {
		t.Fatal("expected read error on closed connection")
	}
	if _, err := transport.Read(buf); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got: %v", err)
	}
}
