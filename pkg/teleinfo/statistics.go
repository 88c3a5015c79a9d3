// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	ChecksumErrors  uint64
	FramingErrors   uint64
	Overflows       uint64
	ShortGroups     uint64
	AbortedFrames   uint64
	AnomalousFrames uint64
	MissingFields   uint64
	NonNumeric      uint64
	OverCurrent     uint64
	DuplicateLabels uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame or a decode error, and the
// frame's validation errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksum):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrOverflow):
			s.Overflows++
		case errors.Is(decodeErr, ErrShortGroup):
			s.ShortGroups++
		case errors.Is(decodeErr, ErrAborted):
			s.AbortedFrames++
		default:
			s.FramingErrors++
		}
		return
	}

	if len(validationErrors) == 0 {
		s.ValidFrames++
		return
	}

	s.AnomalousFrames++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyMissingField:
			s.MissingFields++
		case AnomalyNonNumeric:
			s.NonNumeric++
		case AnomalyOverCurrent:
			s.OverCurrent++
		case AnomalyDuplicateLabel:
			s.DuplicateLabels++
		}
	}
}

// DecodeErrors returns the number of frames lost to decode errors
func (s *Statistics) DecodeErrors() uint64 {
	return s.ChecksumErrors + s.FramingErrors + s.Overflows + s.ShortGroups + s.AbortedFrames
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.DecodeErrors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, percent(s.FramingErrors))
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d (%.1f%%)\n", s.Overflows, percent(s.Overflows))
	}
	if s.ShortGroups > 0 {
		result += fmt.Sprintf("Short Groups:    %8d (%.1f%%)\n", s.ShortGroups, percent(s.ShortGroups))
	}
	if s.AbortedFrames > 0 {
		result += fmt.Sprintf("Aborted Frames:  %8d (%.1f%%)\n", s.AbortedFrames, percent(s.AbortedFrames))
	}
	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.AnomalousFrames, percent(s.AnomalousFrames))
		if s.MissingFields > 0 {
			result += fmt.Sprintf("  Missing Fields:   %5d\n", s.MissingFields)
		}
		if s.NonNumeric > 0 {
			result += fmt.Sprintf("  Non Numeric:      %5d\n", s.NonNumeric)
		}
		if s.OverCurrent > 0 {
			result += fmt.Sprintf("  Over Current:     %5d\n", s.OverCurrent)
		}
		if s.DuplicateLabels > 0 {
			result += fmt.Sprintf("  Duplicate Labels: %5d\n", s.DuplicateLabels)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.2f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.2f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
