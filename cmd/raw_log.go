// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display teleinformation frames as they arrive.

Each frame is printed with its timestamp and every group, labelled and
interpreted. Discarded candidates are printed inline with the reason.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src := newSource(cfg.Serial)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	fmt.Printf("Teleostat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", src.Info())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	decoder := teleinfo.NewDecoder(teleinfo.WithTrailingDotStrip(cfg.Serial.StripDots))
	src.Run(ctx, func(data []byte) {
		for _, b := range data {
			decoder.Put(b)
			if err := decoder.Err(); err != nil {
				fmt.Printf("[ERROR] %v\n", err)
			}
			if f := decoder.Frame(); f != nil {
				fmt.Print(teleinfo.FormatFrame(f))
			}
		}
	})
	return nil
}
