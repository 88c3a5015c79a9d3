// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the sender cannot accept another request
var ErrQueueFull = errors.New("sender queue full")

// ErrSenderClosed is returned after Close
var ErrSenderClosed = errors.New("sender closed")

// Request is one outbound notification
type Request struct {
	Tag         Tag
	Host        string
	Port        uint16
	Path        string
	Method      string
	Body        []byte
	ContentType string
}

// URL returns the absolute request URL
func (r Request) URL() string {
	return "http://" + net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port))) + r.Path
}

// Sender dispatches requests without waiting for the remote side
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// HTTPSender runs requests on a single worker goroutine so callers never
// wait on the network. Requests are attempted once.
type HTTPSender struct {
	client *http.Client
	queue  chan Request
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewHTTPSender creates a sender with a request timeout and queue depth
func NewHTTPSender(timeout time.Duration, depth int) *HTTPSender {
	if depth <= 0 {
		depth = 16
	}
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
		queue:  make(chan Request, depth),
	}
}

// Start runs the worker until ctx is cancelled or Close is called
func (s *HTTPSender) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-s.queue:
				if !ok {
					return
				}
				s.do(ctx, req)
			}
		}
	}()
}

// Send queues req, failing immediately when the queue is full
func (s *HTTPSender) Send(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSenderClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- req:
		return nil
	default:
		log.WithFields(log.Fields{"tag": req.Tag, "url": req.URL()}).Warn("notification dropped")
		return ErrQueueFull
	}
}

// Close stops accepting requests and waits for the worker to drain the queue
func (s *HTTPSender) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *HTTPSender) do(ctx context.Context, req Request) {
	start := time.Now()
	fields := log.Fields{"tag": req.Tag, "url": req.URL()}

	status, err := s.roundTrip(ctx, req)
	fields["latency"] = time.Since(start)
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("notification failed")
		return
	}
	fields["status"] = status
	log.WithFields(fields).Info("notification sent")
}

func (s *HTTPSender) roundTrip(ctx context.Context, req Request) (int, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL(), body)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
