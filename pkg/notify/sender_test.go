// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

type received struct {
	method string
	uri    string
	body   string
	ctype  string
}

func newTestServer(t *testing.T) (*httptest.Server, string, uint16, chan received) {
	t.Helper()
	ch := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- received{method: r.Method, uri: r.URL.RequestURI(), body: string(body), ctype: r.Header.Get("Content-Type")}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return srv, host, uint16(port), ch
}

func TestHTTPSender_Get(t *testing.T) {
	_, host, port, ch := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewHTTPSender(2*time.Second, 4)
	s.Start(ctx)
	defer s.Close()

	err := s.Send(ctx, Request{Tag: TagUpdate, Host: host, Port: port, Path: "/tic.php?p=1890&t=MAJ"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case r := <-ch:
		if r.method != http.MethodGet || r.uri != "/tic.php?p=1890&t=MAJ" {
			t.Errorf("Received %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Request never arrived")
	}
}

func TestHTTPSender_Post(t *testing.T) {
	_, host, port, ch := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewHTTPSender(2*time.Second, 4)
	s.Start(ctx)
	defer s.Close()

	err := s.Send(ctx, Request{
		Host:        host,
		Port:        port,
		Path:        "/post",
		Method:      http.MethodPost,
		Body:        []byte(`{"PAPP":1890}`),
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case r := <-ch:
		if r.method != http.MethodPost || r.body != `{"PAPP":1890}` || r.ctype != "application/json" {
			t.Errorf("Received %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Request never arrived")
	}
}

func TestHTTPSender_QueueFull(t *testing.T) {
	// worker never started, so the queue only fills
	s := NewHTTPSender(time.Second, 1)
	ctx := context.Background()
	req := Request{Host: "127.0.0.1", Port: 1, Path: "/"}

	if err := s.Send(ctx, req); err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	if err := s.Send(ctx, req); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestHTTPSender_Closed(t *testing.T) {
	s := NewHTTPSender(time.Second, 1)
	s.Close()
	if err := s.Send(context.Background(), Request{}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Expected ErrSenderClosed, got %v", err)
	}
	// second Close is harmless
	s.Close()
}
