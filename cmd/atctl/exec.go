package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/atgw/modem"
)

type connFlags struct {
	port     string
	baud     int
	url      string
	username string
	timeout  time.Duration
	simPIN   string
	verbose  bool
}

func (f *connFlags) dialer() (modem.Dialer, error) {
	switch {
	case f.url != "":
		return modem.WebSocketDialer{
			URL:      f.url,
			Username: f.username,
			Password: os.Getenv("ATCTL_PASSWORD"),
		}, nil
	case f.port != "":
		return modem.SerialDialer{PortName: f.port, BaudRate: f.baud}, nil
	default:
		return nil, errors.New("one of --port or --url is required")
	}
}

func newExecCmd() *cobra.Command {
	var (
		flags commandFlags
		conn  connFlags
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Initialize a modem, run one command and print its response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, terminator, err := flags.request()
			if err != nil {
				return err
			}
			wire, err := req.BuildAlloc(terminator)
			if err != nil {
				return err
			}
			dialer, err := conn.dialer()
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if conn.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			config, err := modem.NewConfigBuilder().
				WithDialer(dialer).
				WithSimPIN(conn.simPIN).
				WithATTimeout(conn.timeout).
				WithLogger(logger).
				Build()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			m, err := modem.New(ctx, config)
			if err != nil {
				return err
			}
			defer m.Close()
			go m.Loop(ctx)

			resp, err := m.Exec(ctx, wire)
			if resp != "" {
				fmt.Fprintln(cmd.OutOrStdout(), resp)
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&conn.port, "port", "p", "", "Serial port device")
	cmd.Flags().IntVarP(&conn.baud, "baud", "b", modem.DefaultBaudRate, "Baud rate (serial only)")
	cmd.Flags().StringVarP(&conn.url, "url", "u", "", "WebSocket bridge URL (ws:// or wss://); password from ATCTL_PASSWORD")
	cmd.Flags().StringVar(&conn.username, "username", "", "Username for HTTP Basic auth")
	cmd.Flags().DurationVar(&conn.timeout, "timeout", 5*time.Second, "Command timeout")
	cmd.Flags().StringVar(&conn.simPIN, "sim-pin", "", "SIM PIN, if the SIM is locked")
	cmd.Flags().BoolVarP(&conn.verbose, "verbose", "v", false, "Log modem traffic")
	cmd.MarkFlagsMutuallyExclusive("port", "url")
	return cmd
}
