// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Local().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] FRAME groups=%d\n", timestamp, f.Len())

	var c Cursor
	for {
		label, value, ok := f.Next(&c)
		if !ok {
			break
		}
		result += fmt.Sprintf("  %-9s %-13s %s\n", label, value, FormatValue(label, value))
	}

	return result
}

// FormatLabel returns the human-readable name for a label
func FormatLabel(label string) string {
	switch label {
	case LabelADCO:
		return "Meter address"
	case LabelOPTARIF:
		return "Tariff option"
	case LabelISOUSC:
		return "Subscribed current"
	case LabelBASE:
		return "Base index"
	case LabelHCHC:
		return "Off-peak index"
	case LabelHCHP:
		return "Peak index"
	case LabelPTEC:
		return "Current tariff period"
	case LabelIINST:
		return "Instantaneous current"
	case LabelADPS:
		return "Power overrun warning"
	case LabelIMAX:
		return "Maximum current"
	case LabelPAPP:
		return "Apparent power"
	case LabelHHPHC:
		return "Schedule group"
	case LabelMOTDETAT:
		return "Status word"
	default:
		return "UNKNOWN"
	}
}

// FormatValue decodes a value with its unit, based on the label
func FormatValue(label, value string) string {
	n, numeric := NormalizeInteger(value)

	switch label {
	case LabelISOUSC, LabelIINST, LabelIMAX, LabelADPS:
		if numeric {
			return fmt.Sprintf("(%s: %s A)", FormatLabel(label), n)
		}
	case LabelBASE, LabelHCHC, LabelHCHP:
		if numeric {
			return fmt.Sprintf("(%s: %s Wh)", FormatLabel(label), n)
		}
	case LabelPAPP:
		if numeric {
			return fmt.Sprintf("(%s: %s VA)", FormatLabel(label), n)
		}
	case LabelPTEC:
		return fmt.Sprintf("(%s: %s)", FormatLabel(label), formatPeriod(value))
	case LabelOPTARIF:
		return fmt.Sprintf("(%s: %s)", FormatLabel(label), formatOption(value))
	case LabelADCO, LabelHHPHC, LabelMOTDETAT:
		return fmt.Sprintf("(%s)", FormatLabel(label))
	}
	return ""
}

func formatPeriod(v string) string {
	switch strings.TrimRight(v, ".") {
	case "TH":
		return "all hours"
	case "HC":
		return "off-peak"
	case "HP":
		return "peak"
	case "HN":
		return "normal"
	case "PM":
		return "mobile peak"
	case "HCJB":
		return "off-peak blue day"
	case "HCJW":
		return "off-peak white day"
	case "HCJR":
		return "off-peak red day"
	case "HPJB":
		return "peak blue day"
	case "HPJW":
		return "peak white day"
	case "HPJR":
		return "peak red day"
	default:
		return v
	}
}

func formatOption(v string) string {
	switch {
	case strings.HasPrefix(v, "BAS"):
		return "base"
	case strings.HasPrefix(v, "HC."):
		return "off-peak hours"
	case strings.HasPrefix(v, "EJP"):
		return "EJP"
	case strings.HasPrefix(v, "BBR"):
		return "tempo"
	default:
		return v
	}
}

// FormatDuration formats a duration to a human-friendly string
func FormatDuration(d time.Duration) string {
	seconds := uint64(d / time.Second)
	if seconds == 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, u := range []struct {
		n    uint64
		unit string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	} {
		switch {
		case u.n == 1:
			parts = append(parts, "1 "+u.unit)
		case u.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", u.n, u.unit))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
