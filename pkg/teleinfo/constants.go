// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

// Protocol Control Bytes
const (
	StartByte      = 0x02 // STX, begins a frame
	EndByte        = 0x03 // ETX, ends a frame
	AbortByte      = 0x04 // EOT, interrupts a frame
	LineFeed       = 0x0A // opens a field group
	CarriageReturn = 0x0D // closes a field group
)

// MaxFrameSize bounds the decoder candidate buffer. The buffer never grows.
const MaxFrameSize = 350

// minGroupSize is label + separator + value + checksum
const minGroupSize = 4

// TimestampLayout renders frame timestamps as %Y-%m-%dT%H:%M:%S%z
const TimestampLayout = "2006-01-02T15:04:05-0700"

// Well-known labels of the historical TIC mode
const (
	LabelADCO     = "ADCO"     // meter address
	LabelOPTARIF  = "OPTARIF"  // tariff option
	LabelISOUSC   = "ISOUSC"   // subscribed current
	LabelBASE     = "BASE"     // base index
	LabelHCHC     = "HCHC"     // off-peak index
	LabelHCHP     = "HCHP"     // peak index
	LabelPTEC     = "PTEC"     // current tariff period
	LabelIINST    = "IINST"    // instantaneous current
	LabelADPS     = "ADPS"     // subscribed power overrun warning
	LabelIMAX     = "IMAX"     // maximum current
	LabelPAPP     = "PAPP"     // apparent power
	LabelHHPHC    = "HHPHC"    // peak/off-peak schedule group
	LabelMOTDETAT = "MOTDETAT" // meter status word
)

// State is a decoder automaton state
type State int

// Decoder States
const (
	StateWaitStart State = iota
	StateWaitLFOrEnd
	StateWaitCR
)

func (s State) String() string {
	switch s {
	case StateWaitStart:
		return "WAIT_START"
	case StateWaitLFOrEnd:
		return "WAIT_LF_OR_END"
	case StateWaitCR:
		return "WAIT_CR"
	default:
		return "UNKNOWN"
	}
}
