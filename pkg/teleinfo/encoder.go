// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"fmt"
	"strings"
)

// Separator is the label/value separator emitted by historical-mode meters
const Separator = ' '

// Checksum computes the group checksum over label, separator and value
func Checksum(label, value string, sep byte) byte {
	sum := int(sep)
	for i := 0; i < len(label); i++ {
		sum += int(label[i])
	}
	for i := 0; i < len(value); i++ {
		sum += int(value[i])
	}
	return byte((sum & 63) + 32)
}

// EncodeGroup creates one wire-formatted field group: LF label SP value SP checksum CR
func EncodeGroup(label, value string) []byte {
	g := make([]byte, 0, len(label)+len(value)+5)
	g = append(g, LineFeed)
	g = append(g, label...)
	g = append(g, Separator)
	g = append(g, value...)
	g = append(g, Separator, Checksum(label, value, Separator), CarriageReturn)
	return g
}

// FormatInt zero-pads n to width digits, keeping the least significant digits
func FormatInt(n uint64, width int) string {
	s := fmt.Sprintf("%0*d", width, n)
	if len(s) > width {
		s = s[len(s)-width:]
	}
	return s
}

// EncodeFrame creates a complete wire-formatted frame from pairs
func EncodeFrame(pairs []Pair) []byte {
	frame := []byte{StartByte}
	for _, p := range pairs {
		frame = append(frame, EncodeGroup(p.Label, p.Value)...)
	}
	return append(frame, EndByte)
}

// FrameBuilder accumulates field groups for a frame
type FrameBuilder struct {
	pairs []Pair
}

// NewFrameBuilder creates an empty builder
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{}
}

// Add appends a group
func (b *FrameBuilder) Add(label, value string) *FrameBuilder {
	b.pairs = append(b.pairs, Pair{Label: label, Value: value})
	return b
}

// AddInt appends a zero-padded numeric group
func (b *FrameBuilder) AddInt(label string, n uint64, width int) *FrameBuilder {
	return b.Add(label, FormatInt(n, width))
}

// Pairs returns the accumulated groups
func (b *FrameBuilder) Pairs() []Pair {
	p := make([]Pair, len(b.pairs))
	copy(p, b.pairs)
	return p
}

// Bytes returns the wire-formatted frame
func (b *FrameBuilder) Bytes() []byte {
	return EncodeFrame(b.pairs)
}

// ValidLabel reports whether a label can be carried in a group
func ValidLabel(label string) bool {
	return label != "" && !strings.ContainsAny(label, " \x00\x02\x03\x04\n\r")
}
