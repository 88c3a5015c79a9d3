// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

var (
	simADCO     string
	simInterval time.Duration
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Emit a simulated teleinformation stream",
	Long: `Generate frames of a single-phase meter on the peak/off-peak option.

Frames are written to --port or --url when given, otherwise to stdout. On a
terminal, keys toggle the tariff period, the ADPS overrun warning and an
extra load so that every notification trigger can be exercised.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simADCO, "adco", "111111111111", "Meter address")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 1500*time.Millisecond, "Time between frames")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", time.Now().UnixNano(), "Random seed")
}

type simKeyMap struct {
	Tariff  key.Binding
	Overrun key.Binding
	Power   key.Binding
	Quit    key.Binding
}

func (k simKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tariff, k.Overrun, k.Power, k.Quit}
}

func (k simKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var simKeys = simKeyMap{
	Tariff:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle HP/HC")),
	Overrun: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle ADPS")),
	Power:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "toggle +3kVA load")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type simTickMsg time.Time

type simModel struct {
	sim      *teleinfo.Simulator
	out      io.Writer
	outInfo  string
	help     help.Model
	last     []teleinfo.Pair
	sent     int
	err      error
	quitting bool
}

func (m simModel) Init() tea.Cmd {
	return simTick()
}

func simTick() tea.Cmd {
	return tea.Tick(simInterval, func(t time.Time) tea.Msg {
		return simTickMsg(t)
	})
}

func (m simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, simKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, simKeys.Tariff):
			m.sim.ToggleTariff()
		case key.Matches(msg, simKeys.Overrun):
			m.sim.ToggleOverrun()
		case key.Matches(msg, simKeys.Power):
			m.sim.TogglePowerOffset()
		}

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case simTickMsg:
		m.last = m.sim.Next(time.Time(msg))
		if _, err := m.out.Write(teleinfo.EncodeFrame(m.last)); err != nil {
			m.err = err
		} else {
			m.sent++
		}
		return m, simTick()
	}
	return m, nil
}

func (m simModel) View() string {
	if m.quitting {
		return "Stopped.\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("TELEOSTAT - SIMULATOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Output: %s | Frames sent: %d", m.outInfo, m.sent)))
	s.WriteString("\n\n")

	var state strings.Builder
	state.WriteString(fmt.Sprintf("%s %s   %s %v   %s %d VA",
		statsLabelStyle.Render("Period:"), statsValueStyle.Render(m.sim.Period()),
		statsLabelStyle.Render("Overrun:"), m.sim.Overrun(),
		statsLabelStyle.Render("Extra load:"), m.sim.PowerOffset(),
	))
	for _, p := range m.last {
		state.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render(fmt.Sprintf("%-9s", p.Label)),
			statsValueStyle.Render(p.Value),
		))
	}
	s.WriteString(boxStyle.Render(state.String()))
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		s.WriteString("\n")
	}
	s.WriteString(m.help.View(simKeys))
	return s.String()
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sim := teleinfo.NewSimulator(simADCO, simSeed, time.Now())

	var out io.Writer = os.Stdout
	outInfo := "stdout"
	if portName != "" || wsURL != "" {
		conn, info, err := OpenConnection(config.SerialConfig{Port: portName, Baud: baudRate, URL: wsURL, Mask8N1: mask8N1})
		if err != nil {
			return err
		}
		defer conn.Close()
		out, outInfo = conn, info
	}

	interactive := outInfo != "stdout" && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		m := simModel{sim: sim, out: out, outInfo: outInfo, help: help.New()}
		if _, err := tea.NewProgram(m).Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	}
	return streamFrames(cmd.Context(), sim, out)
}

// streamFrames writes frames until interrupted
func streamFrames(ctx context.Context, sim *teleinfo.Simulator, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if _, err := out.Write(sim.Frame(t)); err != nil {
				return err
			}
		}
	}
}
