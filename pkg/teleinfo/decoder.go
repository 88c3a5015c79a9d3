// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Decode failure kinds reported by Decoder.Err
var (
	ErrFraming    = errors.New("framing error")
	ErrChecksum   = errors.New("checksum mismatch")
	ErrOverflow   = errors.New("frame overflow")
	ErrShortGroup = errors.New("group too short")
	ErrAborted    = errors.New("frame aborted")
)

// Decoder implements the teleinformation frame decoder state machine.
//
// Field groups are packed into a fixed buffer as label\0value\0 while a frame
// is in progress. A candidate only becomes visible through Frame once END has
// been received in WAIT_LF_OR_END.
type Decoder struct {
	state      State
	buffer     [MaxFrameSize]byte
	offset     int
	groupStart int
	ready      bool
	err        error
	timestamp  time.Time
	clock      Clock
	stripDots  bool
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithClock sets the timestamp source read on every START byte
func WithClock(c Clock) DecoderOption {
	return func(d *Decoder) {
		d.clock = c
	}
}

// WithTrailingDotStrip removes literal '.' characters ending a value
func WithTrailingDotStrip(enabled bool) DecoderOption {
	return func(d *Decoder) {
		d.stripDots = enabled
	}
}

// NewDecoder creates a new frame decoder
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		state: StateWaitStart,
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = SystemClock{}
	}
	return d
}

// Reset discards any in-progress candidate and waits for START
func (d *Decoder) Reset() {
	d.state = StateWaitStart
	d.offset = 0
	d.groupStart = 0
	d.ready = false
	d.err = nil
}

// State returns the current automaton state
func (d *Decoder) State() State {
	return d.state
}

// Ready reports whether the last Put completed a valid frame.
// It is cleared by the next Put.
func (d *Decoder) Ready() bool {
	return d.ready
}

// Err returns why the last Put discarded an in-progress candidate, or nil.
// The decoder has already recovered when Err is non-nil.
func (d *Decoder) Err() error {
	return d.err
}

// Put processes a single byte through the decoder state machine
func (d *Decoder) Put(b byte) {
	d.ready = false
	d.err = nil

	switch b {
	case StartByte:
		if d.state != StateWaitStart {
			d.err = fmt.Errorf("%w: START received in %s", ErrFraming, d.state)
		}
		d.offset = 0
		d.groupStart = 0
		d.state = StateWaitLFOrEnd
		d.timestamp = d.clock.Now().Truncate(time.Microsecond)

	case LineFeed:
		if d.state != StateWaitLFOrEnd {
			d.fail(ErrFraming, "LF received in %s", d.state)
			return
		}
		d.state = StateWaitCR
		d.groupStart = d.offset

	case CarriageReturn:
		d.closeGroup()

	case EndByte:
		if d.state != StateWaitLFOrEnd {
			d.fail(ErrFraming, "END received in %s", d.state)
			return
		}
		d.ready = true
		d.state = StateWaitStart

	case AbortByte:
		d.fail(ErrAborted, "EOT received in %s", d.state)

	default:
		if d.state != StateWaitCR {
			d.fail(ErrFraming, "byte 0x%02X received in %s", b, d.state)
			return
		}
		if b == 0 {
			d.fail(ErrFraming, "NUL byte inside group")
			return
		}
		if d.offset >= MaxFrameSize {
			d.fail(ErrOverflow, "frame exceeds %d bytes", MaxFrameSize)
			return
		}
		d.buffer[d.offset] = b
		d.offset++
	}
}

// closeGroup validates the group ending at the current offset
func (d *Decoder) closeGroup() {
	if d.state != StateWaitCR {
		d.fail(ErrFraming, "CR received in %s", d.state)
		return
	}
	if d.offset >= MaxFrameSize-2 {
		d.fail(ErrOverflow, "frame exceeds %d bytes", MaxFrameSize-2)
		return
	}
	if d.offset < minGroupSize || d.groupStart >= d.offset-3 {
		d.fail(ErrShortGroup, "group of %d bytes", d.offset-d.groupStart)
		return
	}

	sep := d.buffer[d.offset-2]
	expected := d.buffer[d.offset-1]

	// Checksum covers label, separator and value (method 1)
	sum := 0
	split := -1
	for i := d.groupStart; i < d.offset-2; i++ {
		sum += int(d.buffer[i])
		if split < 0 && d.buffer[i] == sep {
			split = i
		}
	}
	calculated := byte((sum & 63) + 32)

	if calculated != expected {
		d.fail(ErrChecksum, "group %q: expected %q, got %q",
			d.buffer[d.groupStart:d.offset-2], calculated, expected)
		return
	}
	if split < 0 {
		d.fail(ErrFraming, "group %q has no separator", d.buffer[d.groupStart:d.offset-2])
		return
	}
	// the trailing separator is outside the checksum
	if split == d.groupStart {
		d.fail(ErrFraming, "group %q has an empty label", d.buffer[d.groupStart:d.offset-2])
		return
	}

	d.buffer[split] = 0
	d.offset--               // drop checksum
	d.buffer[d.offset-1] = 0 // terminate value

	if d.stripDots {
		for d.offset-2 > split && d.buffer[d.offset-2] == '.' {
			d.offset--
			d.buffer[d.offset-1] = 0
		}
	}

	d.state = StateWaitLFOrEnd
}

func (d *Decoder) fail(kind error, format string, args ...interface{}) {
	if d.state != StateWaitStart {
		d.err = fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
	}
	d.state = StateWaitStart
	d.offset = 0
	d.groupStart = 0
}

// Frame returns the frame completed by the last Put, or nil when Ready is false
func (d *Decoder) Frame() *Frame {
	if !d.ready {
		return nil
	}
	return &Frame{
		pairs:     unpackPairs(d.buffer[:d.offset]),
		timestamp: d.timestamp,
	}
}

// unpackPairs splits label\0value\0 sequences
func unpackPairs(buf []byte) []Pair {
	pairs := make([]Pair, 0, bytes.Count(buf, []byte{0})/2)
	for len(buf) > 0 {
		i := bytes.IndexByte(buf, 0)
		if i < 0 {
			break
		}
		label := string(buf[:i])
		buf = buf[i+1:]

		j := bytes.IndexByte(buf, 0)
		if j < 0 {
			break
		}
		pairs = append(pairs, Pair{Label: label, Value: string(buf[:j])})
		buf = buf[j+1:]
	}
	return pairs
}
