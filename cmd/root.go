// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/teleostat/pkg/config"
)

const version = "1.0.0"

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName  string
	baudRate  int
	stripDots bool
	mask8N1   bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "teleostat",
	Short: "Teleinformation (TIC) frame decoder and notifier",
	Long: `Teleostat - Decode the customer teleinformation stream of a French
electricity meter and relay it to home automation targets.

Frames are read from a serial port (1200 baud, 7E1) or from a websocket
bridge, validated byte by byte and exposed over HTTP. Tariff period changes,
power thresholds and overrun warnings trigger HTTP notifications; periodic
uploads go to Jeedom, Emoncms and MQTT.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 1200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
TELEOSTAT_WS_PASSWORD environment variable, or prompted interactively.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 1200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().BoolVar(&stripDots, "strip-dots", false, "Strip trailing '.' from values")
	rootCmd.PersistentFlags().BoolVar(&mask8N1, "8n1", false, "Open the port 8N1 and mask the parity bit")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads the configuration file and lets explicit flags override
// the source settings
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Serial.URL = wsURL
	}
	if flags.Changed("strip-dots") {
		cfg.Serial.StripDots = stripDots
	}
	if flags.Changed("8n1") {
		cfg.Serial.Mask8N1 = mask8N1
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
