package main

//go:generate go tool mockgen -source=server.go -destination=mock_gateway_test.go -package=main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"

	"i4.energy/across/atgw/at"
	"i4.energy/across/atgw/modem"
)

// Gateway is the part of a modem the HTTP server drives.
type Gateway interface {
	SendSMS(ctx context.Context, recipient, message string) (int32, error)
	Exec(ctx context.Context, cmd []byte) (string, error)
	SignalQuality(ctx context.Context) (rssi, ber int32, err error)
	Registration(ctx context.Context) (mode, stat int32, err error)
	Revision(ctx context.Context) (string, error)
}

// result is what a guarded modem call hands back through the breaker.
type result struct {
	response  string
	reference int32
}

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger  *slog.Logger
	Modem   Gateway
	Metrics *Metrics
	// Breaker guards modem calls. Nil disables it.
	Breaker *gobreaker.CircuitBreaker[result]
	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string

	once sync.Once
	mux  *http.ServeMux
}

// NewBreaker returns a circuit breaker that opens after failures consecutive
// modem failures. Commands the modem answered with an error result are not
// failures: the modem is alive.
func NewBreaker(failures uint32, metrics *Metrics, logger *slog.Logger) *gobreaker.CircuitBreaker[result] {
	return gobreaker.NewCircuitBreaker[result](gobreaker.Settings{
		Name: "modem",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, at.ErrCommandFailed) ||
				errors.Is(err, modem.ErrInvalidMessage) ||
				errors.Is(err, modem.ErrInvalidRecipient) ||
				errors.Is(err, at.ErrInvalidParameter) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.SetBreakerState(to)
			}
		},
	})
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(func() {
		s.mux = http.NewServeMux()
		s.mux.HandleFunc("POST /sms", s.handleSMS)
		s.mux.HandleFunc("POST /at", s.handleAT)
		s.mux.HandleFunc("GET /status", s.handleStatus)
		if s.Metrics != nil {
			s.mux.Handle("GET /metrics", s.Metrics.Handler())
		}
	})

	if !s.authorized(r) {
		s.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) == 1
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Debug("Failed to write response", "error", err)
	}
}

// guard runs fn through the breaker, if there is one.
func (s *Server) guard(fn func() (result, error)) (result, error) {
	if s.Breaker == nil {
		return fn()
	}
	return s.Breaker.Execute(fn)
}

// statusFor maps a modem error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, modem.ErrInvalidMessage),
		errors.Is(err, modem.ErrInvalidRecipient),
		errors.Is(err, at.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, at.ErrCommandFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.Is(err, at.ErrCommandFailed):
		return "modem_error"
	default:
		return "failed"
	}
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	type SMSResponse struct {
		Reference int32 `json:"reference"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	res, err := s.guard(func() (result, error) {
		ref, err := s.Modem.SendSMS(r.Context(), req.To, req.Message)
		return result{reference: ref}, err
	})
	if s.Metrics != nil {
		s.Metrics.RecordSMS(outcome(err))
	}
	if err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message), "reference", res.reference)
	s.sendJSON(w, SMSResponse{Reference: res.reference}, http.StatusOK)
}

// handleAT builds a command from its JSON description and runs it.
func (s *Server) handleAT(w http.ResponseWriter, r *http.Request) {
	type ATResponse struct {
		Command  string `json:"command"`
		Response string `json:"response"`
		Message  string `json:"message,omitempty"`
	}

	var req at.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd, err := req.BuildAlloc(at.CR)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	wire := strconv.Quote(string(cmd))

	res, err := s.guard(func() (result, error) {
		resp, err := s.Modem.Exec(r.Context(), cmd)
		return result{response: resp}, err
	})
	if s.Metrics != nil {
		s.Metrics.RecordCommand(req.Kind.String(), outcome(err))
	}

	switch {
	case err == nil:
		s.sendJSON(w, ATResponse{Command: wire, Response: res.response}, http.StatusOK)
	case errors.Is(err, at.ErrCommandFailed):
		s.Logger.Warn("AT command rejected by modem", "command", wire, "error", err)
		s.sendJSON(w, ATResponse{Command: wire, Response: res.response, Message: err.Error()}, http.StatusBadGateway)
	default:
		s.Logger.Error("AT command failed", "command", wire, "error", err)
		s.sendError(w, err.Error(), statusFor(err))
	}
}

// handleStatus reports signal, registration and firmware revision.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		RSSI         int32  `json:"rssi"`
		BER          int32  `json:"ber"`
		Registration int32  `json:"registration"`
		Revision     string `json:"revision"`
	}

	var status StatusResponse
	_, err := s.guard(func() (result, error) {
		var err error
		if status.RSSI, status.BER, err = s.Modem.SignalQuality(r.Context()); err != nil {
			return result{}, err
		}
		if _, status.Registration, err = s.Modem.Registration(r.Context()); err != nil {
			return result{}, err
		}
		status.Revision, err = s.Modem.Revision(r.Context())
		return result{}, err
	})
	if err != nil {
		s.Logger.Error("Failed to query modem status", "error", err)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	s.sendJSON(w, status, http.StatusOK)
}
