package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// BridgeURL, when set, reaches the modem through a serial-to-WebSocket
	// bridge (ws:// or wss://) instead of SerialPort
	BridgeURL      string
	BridgeUser     string
	BridgePassword string
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// SimPIN is the SIM card PIN code
	SimPIN string
	// MinSendInterval is the minimum time between two SMS submissions
	MinSendInterval time.Duration
	// BreakerFailures is the number of consecutive modem failures after
	// which requests are rejected until the modem recovers
	BreakerFailures uint32
	// HTTPToken, when set, is required as a Bearer token on every request
	HTTPToken string
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.MinSendInterval = 10 * time.Second
		c.BreakerFailures = 5
		return nil
	}
}

type fileConfig struct {
	BindAddress     string `toml:"bind_address"`
	SerialPort      string `toml:"serial_port"`
	BaudRate        int    `toml:"baud_rate"`
	BridgeURL       string `toml:"bridge_url"`
	BridgeUser      string `toml:"bridge_user"`
	BridgePassword  string `toml:"bridge_password"`
	LogLevel        string `toml:"log_level"`
	SimPIN          string `toml:"sim_pin"`
	MinSendInterval string `toml:"min_send_interval"`
	BreakerFailures uint32 `toml:"breaker_failures"`
	HTTPToken       string `toml:"http_token"`
}

// WithFile loads configuration from a TOML file. Only keys present in the
// file override earlier values. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}

		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("load config file: unknown key %q", undecoded[0].String())
		}

		if meta.IsDefined("bind_address") {
			c.BindAddress = strings.TrimSpace(raw.BindAddress)
		}
		if meta.IsDefined("serial_port") {
			c.SerialPort = strings.TrimSpace(raw.SerialPort)
		}
		if meta.IsDefined("baud_rate") {
			c.BaudRate = raw.BaudRate
		}
		if meta.IsDefined("bridge_url") {
			c.BridgeURL = strings.TrimSpace(raw.BridgeURL)
		}
		if meta.IsDefined("bridge_user") {
			c.BridgeUser = raw.BridgeUser
		}
		if meta.IsDefined("bridge_password") {
			c.BridgePassword = raw.BridgePassword
		}
		if meta.IsDefined("log_level") {
			c.LogLevel = strings.TrimSpace(raw.LogLevel)
		}
		if meta.IsDefined("sim_pin") {
			c.SimPIN = raw.SimPIN
		}
		if meta.IsDefined("min_send_interval") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.MinSendInterval))
			if err != nil {
				return fmt.Errorf("parse min_send_interval: %w", err)
			}
			c.MinSendInterval = d
		}
		if meta.IsDefined("breaker_failures") {
			c.BreakerFailures = raw.BreakerFailures
		}
		if meta.IsDefined("http_token") {
			c.HTTPToken = strings.TrimSpace(raw.HTTPToken)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if url := os.Getenv("BRIDGE_URL"); url != "" {
			c.BridgeURL = url
		}

		if user := os.Getenv("BRIDGE_USER"); user != "" {
			c.BridgeUser = user
		}

		if password := os.Getenv("BRIDGE_PASSWORD"); password != "" {
			c.BridgePassword = password
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.SimPIN = simPIN
		}

		if interval := os.Getenv("MIN_SEND_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.MinSendInterval = d
			}
		}

		if token := os.Getenv("HTTP_TOKEN"); token != "" {
			c.HTTPToken = token
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "bridge-url":
				c.BridgeURL = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "sim-pin":
				c.SimPIN = f.Value.String()
			case "min-send-interval":
				var d time.Duration
				if d, err = time.ParseDuration(f.Value.String()); err == nil {
					c.MinSendInterval = d
				}
			}
		})
		return err
	}
}
