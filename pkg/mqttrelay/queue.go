// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttrelay

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the queue cannot accept another message
var ErrQueueFull = errors.New("mqtt queue full")

// ErrQueueClosed is returned after Close
var ErrQueueClosed = errors.New("mqtt queue closed")

// Queue is a Publisher that hands messages to a single worker goroutine.
// Publish never waits on the wrapped publisher.
type Queue struct {
	pub   Publisher
	queue chan message
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type message struct {
	topic   string
	payload []byte
}

// NewQueue wraps pub with a bounded queue of depth messages
func NewQueue(pub Publisher, depth int) *Queue {
	if depth <= 0 {
		depth = 16
	}
	return &Queue{pub: pub, queue: make(chan message, depth)}
}

// Start runs the worker until ctx is cancelled or Close is called
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-q.queue:
				if !ok {
					return
				}
				if err := q.pub.Publish(m.topic, m.payload); err != nil {
					log.WithError(err).WithField("topic", m.topic).Warn("mqtt publish failed")
				}
			}
		}
	}()
}

// Publish queues a message, failing immediately when the queue is full
func (q *Queue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.queue <- message{topic, payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for the worker to drain the queue
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
