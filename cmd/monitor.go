// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Aliases: []string{"error_detection"},
	Short:   "Detect and analyze malformed frames and anomalies",
	Long: `Track decode failures and anomalous frame content with statistics.

This command validates each frame and detects:
  - Checksum mismatches, framing errors and aborted frames
  - Overflowing frames and groups too short to carry a checksum
  - Missing ADCO or PTEC groups and non-numeric counters
  - Instantaneous current above the subscribed current
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Decode errors before the first valid frame are counted as synchronization
noise rather than reported.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// frameMsg carries one decoder outcome to the UI
type frameMsg struct {
	frame            *teleinfo.Frame
	decodeErr        error
	validationErrors []teleinfo.ValidationError
}

type syncMsg struct {
	invalidBytes int
}

type connectionMsg struct {
	connected bool
	info      string
}

// frameTracker feeds bytes through the decoder and reports outcomes once
// the stream is synchronized
type frameTracker struct {
	decoder      *teleinfo.Decoder
	synchronized bool
	invalidBytes int

	onSync  func(invalidBytes int)
	onFrame func(frameMsg)
}

func (t *frameTracker) feed(data []byte) {
	for _, b := range data {
		t.decoder.Put(b)

		if err := t.decoder.Err(); err != nil {
			if t.synchronized {
				t.onFrame(frameMsg{decodeErr: err})
			} else {
				t.invalidBytes++
			}
			continue
		}

		f := t.decoder.Frame()
		if f == nil {
			continue
		}
		if !t.synchronized {
			t.synchronized = true
			t.onSync(t.invalidBytes)
		}
		t.onFrame(frameMsg{frame: f, validationErrors: teleinfo.ValidateFrame(f)})
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src := newSource(cfg.Serial)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	decoder := teleinfo.NewDecoder(teleinfo.WithTrailingDotStrip(cfg.Serial.StripDots))

	if useTUI && term.IsTerminal(int(os.Stdout.Fd())) {
		return runTUIMode(cmd.Context(), src, decoder)
	}
	return runTextMode(cmd.Context(), src, decoder)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f *teleinfo.Frame, errors []teleinfo.ValidationError) {
	timestamp := f.Timestamp().Local().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m frame with %d groups\n", timestamp, f.Len())
	fmt.Printf("  Checksums: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case teleinfo.AnomalyMissingField, teleinfo.AnomalyDuplicateLabel:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case teleinfo.AnomalyNonNumeric:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if value, ok := err.Details["value"].(string); ok {
				fmt.Printf("    value=%q\n", value)
			}

		case teleinfo.AnomalyOverCurrent:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if iinst, ok := err.Details["iinst"].(int); ok {
				if isousc, ok := err.Details["isousc"].(int); ok {
					fmt.Printf("    IINST=%dA, ISOUSC=%dA\n", iinst, isousc)
				}
			}

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	if ptec, ok := f.Lookup(teleinfo.LabelPTEC); ok {
		fmt.Printf("  Period: %s\n", teleinfo.FormatValue(teleinfo.LabelPTEC, ptec))
	}
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// runTUIMode runs the monitor with the terminal UI
func runTUIMode(ctx context.Context, src *source, decoder *teleinfo.Decoder) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialModel(src.Info(), statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithAltScreen())

	tracker := &frameTracker{
		decoder: decoder,
		onSync:  func(n int) { p.Send(syncMsg{invalidBytes: n}) },
		onFrame: func(msg frameMsg) { p.Send(msg) },
	}
	src.onState = func(connected bool, info string) {
		p.Send(connectionMsg{connected: connected, info: info})
	}
	go src.Run(ctx, tracker.feed)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode prints errors and periodic statistics to stdout
func runTextMode(ctx context.Context, src *source, decoder *teleinfo.Decoder) error {
	fmt.Printf("Teleostat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", src.Info())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := teleinfo.NewStatistics()
	messages := make(chan frameMsg, 16)
	synced := make(chan int, 1)

	tracker := &frameTracker{
		decoder: decoder,
		onSync:  func(n int) { synced <- n },
		onFrame: func(msg frameMsg) { messages <- msg },
	}
	go src.Run(ctx, tracker.feed)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case n := <-synced:
			if n > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", n)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}

		case msg := <-messages:
			if msg.decodeErr != nil {
				stats.Update(nil, msg.decodeErr, nil)
				printDecodeError(msg.decodeErr)
				continue
			}
			stats.Update(msg.frame, nil, msg.validationErrors)
			if len(msg.validationErrors) > 0 {
				printValidationErrors(msg.frame, msg.validationErrors)
			} else if showAll {
				fmt.Print(teleinfo.FormatFrame(msg.frame))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
