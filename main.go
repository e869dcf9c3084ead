package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"i4.energy/across/atgw/at"
	"i4.energy/across/atgw/modem"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bridge-url", "", "WebSocket URL of a serial bridge (overrides serial-port)")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.Duration("min-send-interval", 10*time.Second, "Minimum time between two SMS")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(config.LogLevel)}))

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithMaxRetries(5).
		WithMinSendInterval(config.MinSendInterval).
		WithSimPIN(config.SimPIN).
		WithDialer(dialerFor(config)).
		WithLogger(logger.With("component", "modem")).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := m.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Modem loop stopped", "error", err)
			stop()
		}
	}()
	go logURCs(ctx, logger.With("component", "urc"), m.URC())

	logger.Info("Starting AT gateway", "serial_port", config.SerialPort, "bridge_url", config.BridgeURL)

	metrics := NewMetrics()
	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Modem:   m,
			Metrics: metrics,
			Breaker: NewBreaker(config.BreakerFailures, metrics, logger.With("component", "breaker")),
			Token:   config.HTTPToken,
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", "cause", context.Cause(ctx))

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dialerFor picks the WebSocket bridge when one is configured and the local
// serial port otherwise.
func dialerFor(c *Config) modem.Dialer {
	if c.BridgeURL != "" {
		return modem.WebSocketDialer{
			URL:      c.BridgeURL,
			Username: c.BridgeUser,
			Password: c.BridgePassword,
		}
	}
	return modem.SerialDialer{
		PortName: c.SerialPort,
		BaudRate: c.BaudRate,
	}
}

func logURCs(ctx context.Context, logger *slog.Logger, urcs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case urc := <-urcs:
			if !strings.HasPrefix(urc, at.UrcNewMsg) {
				logger.Info("Unsolicited result", "urc", urc)
				continue
			}
			msg, err := modem.ParseNewMessage(urc)
			if err != nil {
				logger.Warn("Malformed new message indication", "urc", urc, "error", err)
				continue
			}
			logger.Info("New SMS received", "storage", msg.Storage, "index", msg.Index)
		}
	}
}
