// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"sync"
	"time"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// PeriodicTimer is a polled countdown. Expired never blocks; it reports true
// once per elapsed period and re-arms itself from the time it was polled.
type PeriodicTimer struct {
	mu        sync.Mutex
	clock     teleinfo.Clock
	period    time.Duration
	next      time.Time
	disabled  bool
	triggered bool
}

// NewPeriodicTimer creates a timer expiring every period. A zero period
// creates a disabled timer.
func NewPeriodicTimer(clock teleinfo.Clock, period time.Duration) *PeriodicTimer {
	if clock == nil {
		clock = teleinfo.SystemClock{}
	}
	t := &PeriodicTimer{clock: clock, period: period}
	if period <= 0 {
		t.disabled = true
		return t
	}
	t.next = clock.Now().Add(period)
	return t
}

// DisabledTimer returns a timer that never expires
func DisabledTimer() *PeriodicTimer {
	return &PeriodicTimer{clock: teleinfo.SystemClock{}, disabled: true}
}

// Disabled reports whether the timer can never expire
func (t *PeriodicTimer) Disabled() bool {
	return t.disabled
}

// Period returns the configured period, zero when disabled
func (t *PeriodicTimer) Period() time.Duration {
	if t.disabled {
		return 0
	}
	return t.period
}

// Expired reports whether the period has elapsed since the last expiry
func (t *PeriodicTimer) Expired() bool {
	if t.disabled {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.triggered || !now.Before(t.next) {
		t.triggered = false
		t.next = now.Add(t.period)
		return true
	}
	return false
}

// Trigger forces the next Expired call to report true
func (t *PeriodicTimer) Trigger() {
	if t.disabled {
		return
	}
	t.mu.Lock()
	t.triggered = true
	t.mu.Unlock()
}
