// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// countingSink records how often it was written and pruned
type countingSink struct {
	inserts int
	prunes  []int
}

func (s *countingSink) Insert(f *teleinfo.Frame) error {
	s.inserts++
	return nil
}

func (s *countingSink) Prune(keep int) (int64, error) {
	s.prunes = append(s.prunes, keep)
	return 0, nil
}

// stalledSink blocks every Insert until release is closed
type stalledSink struct {
	started chan struct{}
	release chan struct{}
}

func (s *stalledSink) Insert(f *teleinfo.Frame) error {
	s.started <- struct{}{}
	<-s.release
	return nil
}

func (s *stalledSink) Prune(keep int) (int64, error) { return 0, nil }

// ============================================================
// Recorder Tests
// ============================================================

func TestRecorder_WritesToStore(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, 0, 4)
	r.Start(context.Background())

	for i := 0; i < 3; i++ {
		if err := r.Record(storedFrame(i)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	r.Close()

	if n, _ := s.Count(); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if err := r.Record(storedFrame(3)); !errors.Is(err, ErrRecorderClosed) {
		t.Errorf("Expected ErrRecorderClosed, got %v", err)
	}
}

func TestRecorder_PrunesPeriodically(t *testing.T) {
	sink := &countingSink{}
	r := NewRecorder(sink, 50, PruneEvery)
	r.Start(context.Background())

	f := storedFrame(0)
	for i := 0; i < PruneEvery; i++ {
		if err := r.Record(f); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}
	r.Close()

	if sink.inserts != PruneEvery {
		t.Errorf("Inserts = %d, want %d", sink.inserts, PruneEvery)
	}
	if len(sink.prunes) != 1 || sink.prunes[0] != 50 {
		t.Errorf("Prunes = %v, want [50]", sink.prunes)
	}
}

func TestRecorder_StalledStoreDoesNotBlock(t *testing.T) {
	sink := &stalledSink{started: make(chan struct{}, 4), release: make(chan struct{})}
	r := NewRecorder(sink, 0, 1)
	r.Start(context.Background())
	defer r.Close()
	defer close(sink.release)

	// the worker picks up the first frame and stalls on it
	r.Record(storedFrame(0))
	<-sink.started

	done := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < 10; i++ {
			err = r.Record(storedFrame(i))
		}
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrRecorderFull) {
			t.Errorf("Expected ErrRecorderFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a stalled store")
	}
}
