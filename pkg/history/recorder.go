// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// PruneEvery is the number of inserts between two prunes
const PruneEvery = 1000

// ErrRecorderFull is returned when the recorder cannot accept another frame
var ErrRecorderFull = errors.New("history queue full")

// ErrRecorderClosed is returned after Close
var ErrRecorderClosed = errors.New("history recorder closed")

// Sink is the part of Store the recorder writes to
type Sink interface {
	Insert(f *teleinfo.Frame) error
	Prune(keep int) (int64, error)
}

// Recorder writes frames to a Sink from its own goroutine. Frames arriving
// while the queue is full are dropped.
type Recorder struct {
	sink     Sink
	keep     int
	queue    chan *teleinfo.Frame
	wg       sync.WaitGroup
	inserted int

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a recorder. A positive keep prunes the sink to that
// many frames every PruneEvery inserts.
func NewRecorder(sink Sink, keep, depth int) *Recorder {
	if depth <= 0 {
		depth = 16
	}
	return &Recorder{sink: sink, keep: keep, queue: make(chan *teleinfo.Frame, depth)}
}

// Start runs the worker until ctx is cancelled or Close is called
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-r.queue:
				if !ok {
					return
				}
				r.write(f)
			}
		}
	}()
}

// Record queues f, failing immediately when the queue is full
func (r *Recorder) Record(f *teleinfo.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.queue <- f:
		return nil
	default:
		return ErrRecorderFull
	}
}

// Close stops accepting frames and waits for the worker to drain the queue
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) write(f *teleinfo.Frame) {
	if err := r.sink.Insert(f); err != nil {
		log.WithError(err).Warn("history insert failed")
		return
	}
	r.inserted++
	if r.keep <= 0 || r.inserted%PruneEvery != 0 {
		return
	}
	if n, err := r.sink.Prune(r.keep); err != nil {
		log.WithError(err).Warn("history prune failed")
	} else if n > 0 {
		log.WithField("deleted", n).Debug("history pruned")
	}
}
