// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func decodeReference(t *testing.T) *Frame {
	t.Helper()
	d := newTestDecoder()
	count, frame := feed(d, referenceFrame)
	if count != 1 {
		t.Fatalf("Reference frame did not decode")
	}
	return frame
}

// ============================================================
// NormalizeInteger Tests
// ============================================================

func TestNormalizeInteger(t *testing.T) {
	tests := []struct {
		in          string
		want        string
		wantNumeric bool
	}{
		{"000123", "123", true},
		{"000", "0", true},
		{"0", "0", true},
		{"0052890470", "52890470", true},
		{"1890", "1890", true},
		{"000123a", "000123a", false},
		{"HP..", "HP..", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, numeric := NormalizeInteger(tt.in)
			if got != tt.want || numeric != tt.wantNumeric {
				t.Errorf("NormalizeInteger(%q) = (%q, %v), want (%q, %v)",
					tt.in, got, numeric, tt.want, tt.wantNumeric)
			}
		})
	}
}

// ============================================================
// Accessor Tests
// ============================================================

func TestFrame_GetValue(t *testing.T) {
	frame := decodeReference(t)

	tests := []struct {
		label     string
		def       string
		normalize bool
		want      string
	}{
		{"PAPP", "", false, "01890"},
		{"PAPP", "", true, "1890"},
		{"HCHC", "", true, "52890470"},
		{"MOTDETAT", "", true, "0"},
		{"OPTARIF", "", true, "HC.."},
		{"ADPS", "none", true, "none"},
		{"papp", "", false, ""},
	}

	for _, tt := range tests {
		got := frame.GetValue(tt.label, tt.def, tt.normalize)
		if got != tt.want {
			t.Errorf("GetValue(%q, %q, %v) = %q, want %q", tt.label, tt.def, tt.normalize, got, tt.want)
		}
		// repeated lookups are stable
		if again := frame.GetValue(tt.label, tt.def, tt.normalize); again != got {
			t.Errorf("GetValue(%q) not idempotent: %q then %q", tt.label, got, again)
		}
	}
}

func TestFrame_FirstMatchWins(t *testing.T) {
	frame := NewFrame(testTime, []Pair{
		{Label: "PAPP", Value: "00100"},
		{Label: "PAPP", Value: "00200"},
	})
	if v, ok := frame.Lookup("PAPP"); !ok || v != "00100" {
		t.Errorf("Lookup(PAPP) = (%q, %v), want first value", v, ok)
	}
}

func TestFrame_Iteration(t *testing.T) {
	frame := decodeReference(t)

	wantLabels := []string{"ADCO", "OPTARIF", "ISOUSC", "HCHC", "HCHP", "PTEC",
		"IINST", "IMAX", "PAPP", "HHPHC", "MOTDETAT"}

	for pass := 0; pass < 2; pass++ {
		var c Cursor
		var labels []string
		for {
			label, value, ok := frame.Next(&c)
			if !ok {
				break
			}
			if label == "PAPP" && value != "01890" {
				t.Errorf("PAPP = %q during iteration", value)
			}
			labels = append(labels, label)
		}
		if strings.Join(labels, ",") != strings.Join(wantLabels, ",") {
			t.Errorf("pass %d: labels = %v, want %v", pass, labels, wantLabels)
		}
	}
}

func TestFrame_IterationOutOfBounds(t *testing.T) {
	frame := decodeReference(t)

	c := Cursor{pos: 100}
	if _, _, ok := frame.Next(&c); ok {
		t.Error("Cursor past the end should stop iteration")
	}
	c = Cursor{pos: -1}
	if _, _, ok := frame.Next(&c); ok {
		t.Error("Negative cursor should stop iteration")
	}
	if _, _, ok := frame.Next(nil); ok {
		t.Error("Nil cursor should stop iteration")
	}

	var empty *Frame
	var zero Cursor
	if _, _, ok := empty.Next(&zero); ok {
		t.Error("Nil frame should not iterate")
	}
}

// ============================================================
// Rendering Tests
// ============================================================

func TestFrame_ArrayJSON(t *testing.T) {
	frame := decodeReference(t)

	var entries []map[string]string
	if err := json.Unmarshal(frame.ArrayJSON(), &entries); err != nil {
		t.Fatalf("ArrayJSON is not valid JSON: %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("Expected 12 entries, got %d", len(entries))
	}
	if entries[0]["na"] != "timestamp" || entries[0]["va"] != frame.TimestampISO8601() {
		t.Errorf("First entry = %v, want timestamp", entries[0])
	}
	if entries[1]["na"] != "ADCO" || entries[1]["va"] != "111111111111" {
		t.Errorf("Second entry = %v", entries[1])
	}

	// every pair appears once, values quoted and raw
	seen := map[string]int{}
	for _, e := range entries[1:] {
		seen[e["na"]]++
		if want := frame.GetValue(e["na"], "", false); e["va"] != want {
			t.Errorf("%s = %q, want %q", e["na"], e["va"], want)
		}
	}
	for _, p := range frame.Pairs() {
		if seen[p.Label] != 1 {
			t.Errorf("%s appears %d times", p.Label, seen[p.Label])
		}
	}
}

func TestFrame_DictJSON(t *testing.T) {
	frame := decodeReference(t)

	raw := frame.DictJSON(42 * time.Second)
	var dict map[string]interface{}
	if err := json.Unmarshal(raw, &dict); err != nil {
		t.Fatalf("DictJSON is not valid JSON: %v\n%s", err, raw)
	}

	checks := map[string]interface{}{
		"_UPTIME":   float64(42),
		"timestamp": frame.TimestampISO8601(),
		"ADCO":      float64(111111111111),
		"OPTARIF":   "HC..",
		"HCHC":      float64(52890470),
		"HCHP":      float64(49126843),
		"PTEC":      "HP..",
		"PAPP":      float64(1890),
		"HHPHC":     "D",
		"MOTDETAT":  float64(0),
	}
	for k, want := range checks {
		if dict[k] != want {
			t.Errorf("%s = %v (%T), want %v (%T)", k, dict[k], dict[k], want, want)
		}
	}
	if len(dict) != frame.Len()+2 {
		t.Errorf("Expected %d keys, got %d", frame.Len()+2, len(dict))
	}

	if !strings.Contains(string(raw), `"PAPP":1890`) {
		t.Errorf("PAPP should be unquoted: %s", raw)
	}
	if !strings.Contains(string(raw), `"PTEC":"HP.."`) {
		t.Errorf("PTEC should be quoted: %s", raw)
	}
}

func TestFrame_EmptyRendering(t *testing.T) {
	empty := NewFrame(testTime, nil)

	if got := string(empty.ArrayJSON()); got != "[]" {
		t.Errorf("ArrayJSON = %q, want []", got)
	}
	if got := string(empty.DictJSON(time.Minute)); got != "{}" {
		t.Errorf("DictJSON = %q, want {}", got)
	}
	if got := empty.ASCII(); got != "" {
		t.Errorf("ASCII = %q, want empty", got)
	}
}

func TestFrame_ASCII(t *testing.T) {
	frame := decodeReference(t)

	got := frame.ASCII()
	want := "ADCO 111111111111\nOPTARIF HC..\nISOUSC 30\nHCHC 052890470\nHCHP 049126843\n" +
		"PTEC HP..\nIINST 008\nIMAX 042\nPAPP 01890\nHHPHC D\nMOTDETAT 000000\n"
	if got != want {
		t.Errorf("ASCII =\n%s\nwant\n%s", got, want)
	}
}

func TestFrame_ASCIILongFrame(t *testing.T) {
	long := strings.Repeat("9", MaxFrameSize)
	frame := NewFrame(testTime, []Pair{{Label: "ADCO", Value: "111111111111"}, {Label: "LONG", Value: long}})

	want := "ADCO 111111111111\nLONG " + long + "\n"
	if got := frame.ASCII(); got != want {
		t.Errorf("ASCII rendered %d bytes, want %d", len(got), len(want))
	}
}

func TestFrame_TimestampISO8601(t *testing.T) {
	frame := NewFrame(testTime, nil)
	want := testTime.Local().Format("2006-01-02T15:04:05-0700")
	if got := frame.TimestampISO8601(); got != want {
		t.Errorf("TimestampISO8601 = %q, want %q", got, want)
	}
}

func TestSerializableViews(t *testing.T) {
	frame := decodeReference(t)

	views := []Serializable{ArrayView{Frame: frame}, DictView{Frame: frame, Uptime: time.Second}}
	for _, v := range views {
		if !json.Valid(v.JSON()) {
			t.Errorf("%T rendered invalid JSON", v)
		}
	}
}

// ============================================================
// FrameBuffer Tests
// ============================================================

func TestFrameBuffer_CopyFrom(t *testing.T) {
	buf := NewFrameBuffer()
	if !buf.IsEmpty() {
		t.Fatal("New buffer should be empty")
	}

	d := newTestDecoder()
	feed(d, badChecksumFrame)
	if buf.CopyFrom(d) {
		t.Error("CopyFrom should refuse a decoder that is not ready")
	}
	if !buf.IsEmpty() {
		t.Error("Failed frame must not be copied")
	}
	if v := buf.Frame().GetValue("ADCO", "", false); v != "" {
		t.Errorf("Empty buffer returned ADCO=%q", v)
	}

	for i := 0; i < len(referenceFrame); i++ {
		d.Put(referenceFrame[i])
		if d.Ready() {
			if !buf.CopyFrom(d) {
				t.Fatal("CopyFrom failed on a ready decoder")
			}
		}
	}
	if v := buf.Frame().GetValue("PAPP", "", false); v != "01890" {
		t.Errorf("PAPP = %q after copy", v)
	}
}

func TestFrameBuffer_SnapshotSurvivesReplace(t *testing.T) {
	buf := NewFrameBuffer()
	d := newTestDecoder()

	put := func(data []byte) {
		for _, b := range data {
			d.Put(b)
			if d.Ready() {
				buf.CopyFrom(d)
			}
		}
	}

	put(EncodeFrame([]Pair{{Label: "PAPP", Value: "00100"}}))
	snapshot := buf.Frame()
	put(EncodeFrame([]Pair{{Label: "PAPP", Value: "00200"}}))

	if v := snapshot.GetValue("PAPP", "", true); v != "100" {
		t.Errorf("Snapshot changed to %q", v)
	}
	if v := buf.Frame().GetValue("PAPP", "", true); v != "200" {
		t.Errorf("Buffer = %q, want 200", v)
	}
}

func TestFrameBuffer_ConcurrentReaders(t *testing.T) {
	buf := NewFrameBuffer()
	d := newTestDecoder()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					f := buf.Frame()
					_ = f.DictJSON(0)
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		for j := 0; j < len(referenceFrame); j++ {
			d.Put(referenceFrame[j])
			if d.Ready() {
				buf.CopyFrom(d)
			}
		}
	}
	close(stop)
	wg.Wait()

	if buf.Frame().Len() != 11 {
		t.Errorf("Expected 11 groups, got %d", buf.Frame().Len())
	}
}
