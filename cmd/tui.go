// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo      string
	connected     bool
	statsInterval int
	showAll       bool
	stats         *teleinfo.Statistics
	eventLog      []logEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	lastFrame     *teleinfo.Frame
}

type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		connected:     true,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         teleinfo.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case connectionMsg:
		m.connected = msg.connected
		if msg.connected {
			m.connInfo = msg.info
			m.addLogEntry("Reconnected: "+msg.info, false)
		} else {
			m.addLogEntry("Connection lost, retrying", true)
		}

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case frameMsg:
		if msg.decodeErr != nil {
			m.stats.Update(nil, msg.decodeErr, nil)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
			break
		}
		m.stats.Update(msg.frame, nil, msg.validationErrors)
		m.lastFrame = msg.frame

		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.addLogEntry(err.Message, true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("Frame with %d groups (valid)", msg.frame.Len()), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("TELEOSTAT - MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	switch {
	case !m.connected:
		s.WriteString(errorStyle.Render("✗ Disconnected, reconnecting..."))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatistics()))
	s.WriteString("\n\n")

	if m.lastFrame != nil && !m.lastFrame.IsEmpty() {
		s.WriteString(statsLabelStyle.Render("Latest Frame:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.renderFrame()))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderEventLog()))

	return s.String()
}

func (m model) renderStatistics() string {
	st := m.stats
	var validPercent, errorPercent float64
	errors := st.DecodeErrors() + st.AnomalousFrames
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
		errorPercent = float64(errors) * 100.0 / float64(st.TotalFrames)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errors, errorPercent)),
	))

	if st.DecodeErrors() > 0 {
		b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", st.ChecksumErrors)),
			statsLabelStyle.Render("Framing:"), errorStyle.Render(fmt.Sprintf("%d", st.FramingErrors+st.ShortGroups)),
			statsLabelStyle.Render("Overflow/Abort:"), errorStyle.Render(fmt.Sprintf("%d", st.Overflows+st.AbortedFrames)),
		))
	}

	if st.AnomalousFrames > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", st.AnomalousFrames)),
			headerStyle.Render("missing"), st.MissingFields,
			headerStyle.Render("non numeric"), st.NonNumeric,
			headerStyle.Render("over current"), st.OverCurrent,
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))
	return b.String()
}

func (m model) renderFrame() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.lastFrame.TimestampISO8601()))

	var c teleinfo.Cursor
	for {
		label, value, ok := m.lastFrame.Next(&c)
		if !ok {
			break
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render(fmt.Sprintf("%-22s", teleinfo.FormatLabel(label)+":")),
			statsValueStyle.Render(teleinfo.FormatValue(label, value)),
		))
	}
	return b.String()
}

func (m model) renderEventLog() string {
	logHeight := m.height - 30
	if logHeight < 5 {
		logHeight = 5
	}

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var b strings.Builder
	for i := startIdx; i < len(m.eventLog); i++ {
		entry := m.eventLog[i]
		timestamp := headerStyle.Render(entry.timestamp.Format("01/02/06 15:04:05.000"))
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return b.String()
}
