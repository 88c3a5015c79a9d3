// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package web

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// MaxSSEClients bounds concurrent event streams
const MaxSSEClients = 2

// ErrTooManyClients is returned when every SSE slot is taken
var ErrTooManyClients = errors.New("too many sse clients")

// SSEHub fans frames out to event-stream clients. Pushes closer together
// than the minimum interval are dropped.
type SSEHub struct {
	mu       sync.Mutex
	clients  map[chan []byte]struct{}
	max      int
	interval time.Duration
	last     time.Time
	clock    teleinfo.Clock
}

// NewSSEHub creates a hub accepting up to max clients
func NewSSEHub(max int, interval time.Duration, clock teleinfo.Clock) *SSEHub {
	if clock == nil {
		clock = teleinfo.SystemClock{}
	}
	return &SSEHub{
		clients:  make(map[chan []byte]struct{}),
		max:      max,
		interval: interval,
		clock:    clock,
	}
}

// Subscribe registers a client channel
func (h *SSEHub) Subscribe() (chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.max {
		return nil, ErrTooManyClients
	}
	ch := make(chan []byte, 1)
	h.clients[ch] = struct{}{}
	return ch, nil
}

// Unsubscribe removes a client channel
func (h *SSEHub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Clients returns the number of connected clients
func (h *SSEHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish offers data to every client, keeping only the newest message
// for a slow client
func (h *SSEHub) Publish(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	now := h.clock.Now()
	if h.interval > 0 && !h.last.IsZero() && now.Sub(h.last) < h.interval {
		return
	}
	h.last = now

	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// replace the stale message
			select {
			case <-ch:
			default:
			}
			ch <- data
		}
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, err := s.sse.Subscribe()
	if err != nil {
		log.WithField("remote", r.RemoteAddr).Warn("sse client refused")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.sse.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// current frame first
	if f := s.buf.Frame(); !f.IsEmpty() {
		fmt.Fprintf(w, "data: %s\n\n", f.DictJSON(s.Uptime()))
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
