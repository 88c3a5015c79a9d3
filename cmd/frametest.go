// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

var frameTestTimeout int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid teleinformation frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for a complete
frame whose every group passes its checksum. Bytes before the first START and
discarded candidates are counted but not reported.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

A meter emits a frame roughly every 1.5 seconds at 1200 baud.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Serial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Teleostat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	decoder := teleinfo.NewDecoder(teleinfo.WithTrailingDotStrip(cfg.Serial.StripDots))
	frameChan := make(chan *teleinfo.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		discarded := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				decoder.Put(buf[i])
				if decoder.Err() != nil {
					discarded++
					continue
				}
				if f := decoder.Frame(); f != nil {
					if discarded > 0 {
						fmt.Printf("(discarded %d candidates before the first valid frame)\n", discarded)
					}
					frameChan <- f
					return
				}
			}
		}
	}()

	select {
	case f := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Groups: %d\n", f.Len())
		if adco, ok := f.Lookup(teleinfo.LabelADCO); ok {
			fmt.Printf("  Meter: %s\n", adco)
		}
		if ptec, ok := f.Lookup(teleinfo.LabelPTEC); ok {
			fmt.Printf("  Period: %s\n", teleinfo.FormatValue(teleinfo.LabelPTEC, ptec))
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
