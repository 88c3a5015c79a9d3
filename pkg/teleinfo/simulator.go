// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"math"
	"math/rand"
	"time"
)

// Simulator models a single-phase meter on the peak/off-peak option
type Simulator struct {
	adco        string
	isousc      int
	offPeak     bool
	adps        int
	powerOffset int
	hchc        float64 // Wh
	hchp        float64 // Wh
	papp        int
	start       time.Time
	last        time.Time
	rng         *rand.Rand
}

// NewSimulator creates a meter simulator starting at t
func NewSimulator(adco string, seed int64, t time.Time) *Simulator {
	return &Simulator{
		adco:   FormatMeterAddress(adco),
		isousc: 30,
		hchc:   52000000,
		hchp:   49000000,
		start:  t,
		last:   t,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// FormatMeterAddress left-pads an address to 12 characters
func FormatMeterAddress(adco string) string {
	if len(adco) > 12 {
		adco = adco[:12]
	}
	for len(adco) < 12 {
		adco = "0" + adco
	}
	return adco
}

// ToggleTariff switches between peak and off-peak periods
func (s *Simulator) ToggleTariff() {
	s.offPeak = !s.offPeak
}

// ToggleOverrun raises or clears the ADPS warning
func (s *Simulator) ToggleOverrun() {
	if s.adps != 0 {
		s.adps = 0
	} else {
		s.adps = s.isousc + 1
	}
}

// TogglePowerOffset adds or removes a 4000 VA load
func (s *Simulator) TogglePowerOffset() {
	s.powerOffset = 4000 - s.powerOffset
}

// OffPeak reports whether the simulated period is off-peak
func (s *Simulator) OffPeak() bool {
	return s.offPeak
}

// Overrun reports whether the ADPS group is emitted
func (s *Simulator) Overrun() bool {
	return s.adps != 0
}

// PowerOffset returns the extra load in VA
func (s *Simulator) PowerOffset() int {
	return s.powerOffset
}

// Period returns the PTEC value for the current period
func (s *Simulator) Period() string {
	if s.offPeak {
		return "HC.."
	}
	return "HP.."
}

// Next advances the model to t and returns the frame groups
func (s *Simulator) Next(t time.Time) []Pair {
	elapsed := t.Sub(s.start).Seconds()
	iinst := 20 * math.Abs(math.Sin(elapsed/100))
	cosPhi := 0.85 + s.rng.Float64()*0.30
	s.papp = int(math.Round(iinst*230*cosPhi)) + s.powerOffset

	delta := t.Sub(s.last).Hours() * float64(s.papp)
	if delta > 0 {
		if s.offPeak {
			s.hchc += delta
		} else {
			s.hchp += delta
		}
	}
	s.last = t

	b := NewFrameBuilder().
		Add(LabelADCO, s.adco).
		Add(LabelOPTARIF, "HC..").
		AddInt(LabelISOUSC, uint64(s.isousc), 2).
		AddInt(LabelHCHC, uint64(math.Round(s.hchc)), 9).
		AddInt(LabelHCHP, uint64(math.Round(s.hchp)), 9).
		Add(LabelPTEC, s.Period()).
		AddInt(LabelIINST, uint64(math.Round(iinst)), 3).
		Add(LabelIMAX, "042").
		AddInt(LabelPAPP, uint64(s.papp), 5)
	if s.adps != 0 {
		b.AddInt(LabelADPS, uint64(s.adps), 3)
	}
	b.Add(LabelHHPHC, "D").
		Add(LabelMOTDETAT, "000000")

	return b.Pairs()
}

// Frame advances the model to t and returns the wire-formatted frame
func (s *Simulator) Frame(t time.Time) []byte {
	return EncodeFrame(s.Next(t))
}
