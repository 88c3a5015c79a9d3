// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

const (
	labelAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	valueAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ."
)

func randomString(rng *rand.Rand, alphabet string, minLen, maxLen int) string {
	n := minLen + rng.Intn(maxLen-minLen+1)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

// randomFrame builds a valid frame of 1-10 groups. It also returns the wire
// offsets covered by a group checksum: label, first separator, value and the
// checksum byte itself.
func randomFrame(rng *rand.Rand) ([]Pair, []byte, []int) {
	count := rng.Intn(10) + 1
	pairs := make([]Pair, count)
	for i := range pairs {
		pairs[i] = Pair{
			Label: randomString(rng, labelAlphabet, 1, 8),
			Value: randomString(rng, valueAlphabet, 1, 12),
		}
	}

	data := EncodeFrame(pairs)

	var covered []int
	pos := 1 // START
	for _, p := range pairs {
		pos++ // LF
		body := len(p.Label) + 1 + len(p.Value)
		for j := 0; j < body; j++ {
			covered = append(covered, pos+j)
		}
		covered = append(covered, pos+body+1) // checksum
		pos += body + 3                       // separator, checksum, CR
	}
	return pairs, data, covered
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash and still decodes afterwards
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	d := newTestDecoder()
	for i := 0; i < rounds; i++ {
		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			d.Put(b)
			if d.Ready() && d.Frame() == nil {
				t.Fatalf("Round %d: ready decoder returned no frame", i)
			}
		}

		if count, _ := feed(d, referenceFrame); count != 1 {
			t.Fatalf("Round %d: decoder did not recover after % X", i, data)
		}
	}
}

// TestFuzzDecoder_RoundTrip decodes random valid frames
func TestFuzzDecoder_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	d := newTestDecoder()
	for i := 0; i < rounds; i++ {
		pairs, data, _ := randomFrame(rng)

		count, frame := feed(d, string(data))
		if count != 1 {
			t.Fatalf("Round %d: expected 1 frame, got %d for %q", i, count, data)
		}
		got := frame.Pairs()
		if len(got) != len(pairs) {
			t.Fatalf("Round %d: expected %d groups, got %d", i, len(pairs), len(got))
		}
		for j := range pairs {
			if got[j] != pairs[j] {
				t.Errorf("Round %d group %d: got %+v, want %+v", i, j, got[j], pairs[j])
			}
		}
	}
}

// TestFuzzDecoder_SingleByteCorruption alters one checksummed byte of a valid
// frame and verifies the frame is rejected and the next one decodes
func TestFuzzDecoder_SingleByteCorruption(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	d := newTestDecoder()
	for i := 0; i < rounds; i++ {
		_, data, covered := randomFrame(rng)

		pos := covered[rng.Intn(len(covered))]
		old := data[pos]
		var b byte
		for {
			// printable replacement whose difference is not absorbed by the 6-bit sum
			b = byte(0x21 + rng.Intn(0x7E-0x21+1))
			if b != old && (int(b)-int(old))%64 != 0 {
				break
			}
		}
		data[pos] = b

		if count, _ := feed(d, string(data)); count != 0 {
			t.Fatalf("Round %d: corrupted byte %d (0x%02X -> 0x%02X) was accepted: %q", i, pos, old, b, data)
		}
		if count, _ := feed(d, referenceFrame); count != 1 {
			t.Fatalf("Round %d: decoder did not recover after corruption", i)
		}
	}
}

// TestFuzzDecoder_Truncated cuts valid frames short
func TestFuzzDecoder_Truncated(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := newTestDecoder()
		_, data, _ := randomFrame(rng)

		cut := rng.Intn(len(data) - 1)
		if count, _ := feed(d, string(data[:cut])); count != 0 {
			t.Fatalf("Round %d: truncated frame reported ready", i)
		}
		if count, _ := feed(d, referenceFrame); count != 1 {
			t.Fatalf("Round %d: decoder did not recover after truncation at %d", i, cut)
		}
	}
}
