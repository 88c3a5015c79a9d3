// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"sync"
	"time"
)

// Pair is one label/value field group of a frame
type Pair struct {
	Label string
	Value string
}

// Frame is a validated teleinformation frame. A Frame is never modified
// after construction, so it can be shared between goroutines.
type Frame struct {
	pairs     []Pair
	timestamp time.Time
}

// NewFrame creates a frame from pairs in wire order
func NewFrame(timestamp time.Time, pairs []Pair) *Frame {
	p := make([]Pair, len(pairs))
	copy(p, pairs)
	return &Frame{pairs: p, timestamp: timestamp}
}

// Timestamp returns the time the frame START byte was received
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Len returns the number of field groups
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.pairs)
}

// IsEmpty reports whether the frame holds no field groups
func (f *Frame) IsEmpty() bool {
	return f.Len() == 0
}

// Pairs returns a copy of the field groups in wire order
func (f *Frame) Pairs() []Pair {
	if f == nil {
		return nil
	}
	p := make([]Pair, len(f.pairs))
	copy(p, f.pairs)
	return p
}

// Lookup returns the value of the first group whose label matches exactly
func (f *Frame) Lookup(label string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, p := range f.pairs {
		if p.Label == label {
			return p.Value, true
		}
	}
	return "", false
}

// GetValue returns the value for label, or def when the label is absent.
// With normalize set, leading zeros of numeric values are stripped.
func (f *Frame) GetValue(label, def string, normalize bool) string {
	v, ok := f.Lookup(label)
	if !ok {
		return def
	}
	if normalize {
		v, _ = NormalizeInteger(v)
	}
	return v
}

// Cursor tracks the position of an iteration over a frame.
// The zero value starts at the first group.
type Cursor struct {
	pos int
}

// Next returns the group under the cursor and advances it. It returns false
// once the frame is exhausted or the cursor lies outside the frame.
func (f *Frame) Next(c *Cursor) (label, value string, ok bool) {
	if f == nil || c == nil {
		return "", "", false
	}
	if c.pos < 0 || c.pos >= len(f.pairs) {
		return "", "", false
	}
	p := f.pairs[c.pos]
	c.pos++
	return p.Label, p.Value, true
}

// NormalizeInteger strips leading zeros from an all-digit value, keeping the
// last digit ("000" gives "0"). Values holding any other character, and the
// empty value, are returned unchanged with false.
func NormalizeInteger(v string) (string, bool) {
	if v == "" {
		return v, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return v, false
		}
	}
	i := 0
	for i < len(v)-1 && v[i] == '0' {
		i++
	}
	return v[i:], true
}

// FrameBuffer holds the most recent validated frame. The decoder copy is its
// only writer; readers get immutable snapshots.
type FrameBuffer struct {
	mu    sync.RWMutex
	frame *Frame
}

// NewFrameBuffer creates an empty buffer
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{frame: &Frame{}}
}

// CopyFrom replaces the visible frame with the one the decoder just completed.
// It returns false and leaves the buffer untouched when the decoder is not ready.
func (b *FrameBuffer) CopyFrom(d *Decoder) bool {
	f := d.Frame()
	if f == nil {
		return false
	}
	b.mu.Lock()
	b.frame = f
	b.mu.Unlock()
	return true
}

// Frame returns the current frame snapshot
func (b *FrameBuffer) Frame() *Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame
}

// IsEmpty reports whether no frame has been copied in yet (or the last frame
// carried no groups)
func (b *FrameBuffer) IsEmpty() bool {
	return b.Frame().IsEmpty()
}
