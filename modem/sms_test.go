package modem_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"i4.energy/across/atgw/at"
	"i4.energy/across/atgw/modem"
)

// TestSendSMS drives the submission over a mock line. Reads are gated on the
// writes they answer, as on real hardware: the body must only go out after
// the prompt, and the submit result only exists once the body was written.
func TestSendSMS(t *testing.T) {
	const (
		cmd  = `AT+CMGS="+1234567890"` + "\r"
		body = "Hello World\x1a\r"
	)

	tests := []struct {
		name      string
		cmdReply  string
		bodyReply string // empty when the body must not be written
		check     func(t *testing.T, ref int32, err error)
	}{
		{
			name:      "Success",
			cmdReply:  "> ",
			bodyReply: "+CMGS: 123\r\n\r\nOK\r\n",
			check: func(t *testing.T, ref int32, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if ref != 123 {
					t.Errorf("expected message reference 123, got %d", ref)
				}
			},
		},
		{
			name:     "Error instead of prompt",
			cmdReply: "+CMS ERROR: 304\r\n",
			check: func(t *testing.T, _ int32, err error) {
				var resultErr *at.ResultError
				if !errors.As(err, &resultErr) || resultErr.Code != 304 {
					t.Errorf("expected +CMS ERROR 304, got: %v", err)
				}
			},
		},
		{
			name:     "OK instead of prompt",
			cmdReply: "OK\r\n",
			check: func(t *testing.T, _ int32, err error) {
				if !errors.Is(err, modem.ErrNoPrompt) {
					t.Errorf("expected ErrNoPrompt, got: %v", err)
				}
			},
		},
		{
			name:      "Network rejection",
			cmdReply:  "> ",
			bodyReply: "+CMS ERROR: 500\r\n",
			check: func(t *testing.T, _ int32, err error) {
				if !errors.Is(err, at.ErrCommandFailed) {
					t.Errorf("expected ErrCommandFailed, got: %v", err)
				}
				if err != nil && !strings.Contains(err.Error(), "SMS send failed: +CMS ERROR: 500") {
					t.Errorf("expected original error to be wrapped: %v", err)
				}
			},
		},
		{
			name:      "Missing message reference",
			cmdReply:  "> ",
			bodyReply: "OK\r\n",
			check: func(t *testing.T, _ int32, err error) {
				if !errors.Is(err, modem.ErrUnexpectedResponse) {
					t.Errorf("expected ErrUnexpectedResponse, got: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, transport := newMockModem(ctx, t)
			defer m.Close()

			bodyWritten := make(chan struct{})
			allowEOF := make(chan struct{})

			calls := []any{
				transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
				transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
					return copy(p, tt.cmdReply), nil
				}),
			}
			if tt.bodyReply != "" {
				calls = append(calls,
					transport.EXPECT().Write([]byte(body)).DoAndReturn(func(p []byte) (int, error) {
						close(bodyWritten)
						return len(p), nil
					}),
					transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
						<-bodyWritten
						return copy(p, tt.bodyReply), nil
					}),
				)
			}
			calls = append(calls,
				transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
					<-allowEOF
					return 0, io.EOF
				}),
			)
			gomock.InOrder(calls...)
			transport.EXPECT().Close().Return(nil)

			loopDone := make(chan error, 1)
			go func() {
				loopDone <- m.Loop(ctx)
			}()

			ref, err := m.SendSMS(ctx, "+1234567890", "Hello World")
			close(allowEOF)
			tt.check(t, ref, err)

			if err := <-loopDone; !errors.Is(err, io.EOF) {
				t.Errorf("unexpected loop error: %v", err)
			}
		})
	}

	t.Run("Error on closed modem", func(t *testing.T) {
		m, transport := newMockModem(context.Background(), t)
		transport.EXPECT().Close().Return(nil)
		m.Close()

		if _, err := m.SendSMS(context.Background(), "+1234567890", "test"); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
	})
}

func TestSendSMSScripted(t *testing.T) {
	t.Run("Rejects Ctrl-Z in message", func(t *testing.T) {
		transport := newScriptedTransport(initScript())
		m := startModem(t, transport)

		_, err := m.SendSMS(context.Background(), "+1234567890", "abc\x1adef")
		if !errors.Is(err, modem.ErrInvalidMessage) {
			t.Errorf("expected ErrInvalidMessage, got: %v", err)
		}
		if len(transport.Written()) != 5 {
			t.Errorf("nothing should be written after init, got: %q", transport.Written())
		}
	})

	t.Run("Rejects recipient that breaks the command line", func(t *testing.T) {
		transport := newScriptedTransport(initScript())
		m := startModem(t, transport)

		for _, recipient := range []string{"", "+1\"\rAT+CMGD=1,4\r\"", "+1\n"} {
			_, err := m.SendSMS(context.Background(), recipient, "hi")
			if !errors.Is(err, modem.ErrInvalidRecipient) {
				t.Errorf("recipient %q: expected ErrInvalidRecipient, got: %v", recipient, err)
			}
		}
		if len(transport.Written()) != 5 {
			t.Errorf("nothing should be written after init, got: %q", transport.Written())
		}
	})

	t.Run("Long recipient grows the command buffer", func(t *testing.T) {
		recipient := "+" + strings.Repeat("9", 80)
		script := initScript()
		script[`AT+CMGS="`+recipient+`"`+"\r"] = []string{"> "}
		script["hi\x1a\r"] = []string{"+CMGS: 7\r\nOK\r\n"}
		m := startModem(t, newScriptedTransport(script))

		ref, err := m.SendSMS(context.Background(), recipient, "hi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref != 7 {
			t.Errorf("expected message reference 7, got %d", ref)
		}
	})

	t.Run("Spaces consecutive messages", func(t *testing.T) {
		script := initScript()
		script[`AT+CMGS="+1"`+"\r"] = []string{"> "}
		script["x\x1a\r"] = []string{"+CMGS: 1\r\nOK\r\n", "+CMGS: 2\r\nOK\r\n"}
		interval := 50 * time.Millisecond
		m := startModem(t, newScriptedTransport(script), func(b *modem.ConfigBuilder) {
			b.WithMinSendInterval(interval)
		})

		start := time.Now()
		for want := int32(1); want <= 2; want++ {
			ref, err := m.SendSMS(context.Background(), "+1", "x")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref != want {
				t.Errorf("expected message reference %d, got %d", want, ref)
			}
		}
		if elapsed := time.Since(start); elapsed < interval {
			t.Errorf("second SMS sent after %v, want at least %v", elapsed, interval)
		}
	})

	t.Run("Throttle honours context", func(t *testing.T) {
		script := initScript()
		script[`AT+CMGS="+1"`+"\r"] = []string{"> "}
		script["x\x1a\r"] = []string{"+CMGS: 1\r\nOK\r\n"}
		m := startModem(t, newScriptedTransport(script), func(b *modem.ConfigBuilder) {
			b.WithMinSendInterval(time.Hour)
		})

		if _, err := m.SendSMS(context.Background(), "+1", "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := m.SendSMS(ctx, "+1", "x"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got: %v", err)
		}
	})
}

func TestParseNewMessage(t *testing.T) {
	msg, err := modem.ParseNewMessage(`+CMTI: "SM",3`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Storage != "SM" || msg.Index != 3 {
		t.Errorf("unexpected message: %+v", msg)
	}

	if _, err := modem.ParseNewMessage("RING"); !errors.Is(err, at.ErrParse) {
		t.Errorf("expected ErrParse, got: %v", err)
	}
}
