// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Serializable is implemented by every JSON view served for a frame
type Serializable interface {
	JSON() []byte
}

// ArrayView renders a frame as [{"na":label,"va":value},...]
type ArrayView struct {
	Frame *Frame
}

// JSON implements Serializable
func (v ArrayView) JSON() []byte {
	return v.Frame.ArrayJSON()
}

// DictView renders a frame as {"label":value,...}
type DictView struct {
	Frame  *Frame
	Uptime time.Duration
}

// JSON implements Serializable
func (v DictView) JSON() []byte {
	return v.Frame.DictJSON(v.Uptime)
}

// TimestampISO8601 formats the frame timestamp in local time
func (f *Frame) TimestampISO8601() string {
	if f == nil {
		return ""
	}
	return f.timestamp.Local().Format(TimestampLayout)
}

// ArrayJSON renders the frame as an array prefixed with a timestamp entry.
// An empty frame renders as [].
func (f *Frame) ArrayJSON() []byte {
	if f.IsEmpty() {
		return []byte("[]")
	}

	var buf bytes.Buffer
	buf.WriteString(`[{"na":"timestamp","va":`)
	writeString(&buf, f.TimestampISO8601())
	buf.WriteByte('}')

	var c Cursor
	for {
		label, value, ok := f.Next(&c)
		if !ok {
			break
		}
		buf.WriteString(`,{"na":`)
		writeString(&buf, label)
		buf.WriteString(`,"va":`)
		writeString(&buf, value)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// DictJSON renders the frame as an object. Numeric values are emitted
// unquoted with leading zeros removed. An empty frame renders as {}.
func (f *Frame) DictJSON(uptime time.Duration) []byte {
	if f.IsEmpty() {
		return []byte("{}")
	}

	var buf bytes.Buffer
	buf.WriteString(`{"_UPTIME":`)
	buf.WriteString(strconv.FormatInt(int64(uptime/time.Second), 10))
	buf.WriteString(`,"timestamp":`)
	writeString(&buf, f.TimestampISO8601())

	var c Cursor
	for {
		label, value, ok := f.Next(&c)
		if !ok {
			break
		}
		buf.WriteByte(',')
		writeString(&buf, label)
		buf.WriteByte(':')
		if n, numeric := NormalizeInteger(value); numeric {
			buf.WriteString(n)
		} else {
			writeString(&buf, value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// ASCII reconstructs the frame as "LABEL VALUE\n" lines. Frames built with
// NewFrame are not bound by the decoder buffer and render in full.
func (f *Frame) ASCII() string {
	var sb strings.Builder
	var c Cursor
	for {
		label, value, ok := f.Next(&c)
		if !ok {
			break
		}
		sb.WriteString(label)
		sb.WriteByte(' ')
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// writeString appends s as a JSON string literal
func writeString(buf *bytes.Buffer, s string) {
	enc, err := json.Marshal(s)
	if err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(enc)
}
