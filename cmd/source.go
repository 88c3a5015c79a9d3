// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/config"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// source reads the byte stream and reopens the connection when it is lost
type source struct {
	cfg config.SerialConfig

	mu   sync.Mutex
	conn Connection
	info string

	// onState is told about connection loss and recovery, may be nil
	onState func(connected bool, info string)
}

func newSource(cfg config.SerialConfig) *source {
	return &source{cfg: cfg}
}

func (s *source) setConn(conn Connection, info string) {
	s.mu.Lock()
	s.conn = conn
	s.info = info
	s.mu.Unlock()
}

func (s *source) getConn() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Info describes the current connection
func (s *source) Info() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Open makes the first connection attempt. A failure here is reported to the
// caller instead of being retried.
func (s *source) Open() error {
	conn, info, err := OpenConnection(s.cfg)
	if err != nil {
		return err
	}
	s.setConn(conn, info)
	return nil
}

// Run passes every chunk read to handle until ctx is cancelled. Open must
// have succeeded first.
func (s *source) Run(ctx context.Context, handle func([]byte)) {
	stop := context.AfterFunc(ctx, func() {
		if conn := s.getConn(); conn != nil {
			conn.Close()
		}
	})
	defer stop()

	for {
		s.readFromConnection(ctx, handle)
		if ctx.Err() != nil {
			return
		}

		log.WithField("source", s.Info()).Warn("connection lost")
		if s.onState != nil {
			s.onState(false, s.Info())
		}
		if !s.reconnect(ctx) {
			return
		}
		if s.onState != nil {
			s.onState(true, s.Info())
		}
	}
}

// readFromConnection returns once the connection fails or ctx is done
func (s *source) readFromConnection(ctx context.Context, handle func([]byte)) {
	conn := s.getConn()
	if conn == nil {
		return
	}

	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			handle(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) {
				return
			}
			log.WithError(err).Debug("read error")
			return
		}
	}
}

// reconnect retries with exponential backoff. It returns false if ctx was
// cancelled first.
func (s *source) reconnect(ctx context.Context) bool {
	if conn := s.getConn(); conn != nil {
		conn.Close()
	}

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, info, err := OpenConnection(s.cfg)
		if err == nil {
			s.setConn(conn, info)
			if ctx.Err() != nil {
				conn.Close()
				return false
			}
			log.WithField("source", info).Info("reconnected")
			return true
		}
		log.WithError(err).WithField("retry_in", backoff).Debug("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Close closes the current connection
func (s *source) Close() error {
	if conn := s.getConn(); conn != nil {
		return conn.Close()
	}
	return nil
}
