// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package notify evaluates notification triggers on every decoded frame and
// dispatches the resulting requests.
package notify

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// Tag identifies the trigger behind a notification
type Tag string

const (
	TagUpdate  Tag = "MAJ"
	TagPeriod  Tag = "PTEC"
	TagHigh    Tag = "HAUT"
	TagLow     Tag = "BAS"
	TagOverrun Tag = "ADPS"
	TagNormal  Tag = "NORM"
	TagJeedom  Tag = "JEEDOM"
	TagEmoncms Tag = "EMONCMS"
)

// Target names the destination of a request
type Target string

const (
	TargetHTTP    Target = "httpreq"
	TargetJeedom  Target = "jeedom"
	TargetEmoncms Target = "emoncms"
)

// Notification is reported to listeners for every dispatched request
type Notification struct {
	Target  Target
	Tag     Tag
	Request Request
	Frame   *teleinfo.Frame
	Err     error
}

// TriggerState is the memory carried between frames
type TriggerState struct {
	Period     string // last PTEC seen
	PeriodSeen bool   // first PTEC is absorbed silently
	Above      bool   // PAPP threshold side, false = BAS
	Overrun    bool   // ADPS present in the last frame
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithClock sets the time source of the periodic timers and uptime
func WithClock(c teleinfo.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithListener registers fn to observe every dispatched notification
func WithListener(fn func(Notification)) EngineOption {
	return func(e *Engine) {
		e.listeners = append(e.listeners, fn)
	}
}

// Engine holds trigger state and timers. OnFrame must be called from a
// single goroutine.
type Engine struct {
	cfg       *config.Config
	sender    Sender
	clock     teleinfo.Clock
	start     time.Time
	state     TriggerState
	listeners []func(Notification)

	httpTimer    *PeriodicTimer
	jeedomTimer  *PeriodicTimer
	emoncmsTimer *PeriodicTimer
}

// NewEngine creates an engine with fresh trigger state and timers built from cfg
func NewEngine(cfg *config.Config, sender Sender, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		sender: sender,
		clock:  teleinfo.SystemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.start = e.clock.Now()

	e.httpTimer = makeTimer(e.clock, "http", cfg.HTTPReq.Freq, cfg.HTTPReq.Host, cfg.HTTPReq.Port)
	e.jeedomTimer = makeTimer(e.clock, "jeedom", cfg.Jeedom.Freq, cfg.Jeedom.Host, cfg.Jeedom.Port)
	e.emoncmsTimer = makeTimer(e.clock, "emoncms", cfg.Emoncms.Freq, cfg.Emoncms.Host, cfg.Emoncms.Port)
	return e
}

// makeTimer disables a target permanently when it cannot be reached
func makeTimer(clock teleinfo.Clock, name string, freq uint32, host string, port uint16) *PeriodicTimer {
	if freq == 0 || host == "" || port == 0 {
		log.WithField("target", name).Debug("timer disabled")
		return DisabledTimer()
	}
	log.WithFields(log.Fields{"target": name, "freq": freq}).Debug("timer enabled")
	return NewPeriodicTimer(clock, time.Duration(freq)*time.Second)
}

// HTTPTimer returns the periodic timer of the HTTP target
func (e *Engine) HTTPTimer() *PeriodicTimer { return e.httpTimer }

// JeedomTimer returns the periodic timer of the Jeedom relay
func (e *Engine) JeedomTimer() *PeriodicTimer { return e.jeedomTimer }

// EmoncmsTimer returns the periodic timer of the Emoncms relay
func (e *Engine) EmoncmsTimer() *PeriodicTimer { return e.emoncmsTimer }

// State returns a copy of the trigger state
func (e *Engine) State() TriggerState {
	return e.state
}

// Uptime returns the time elapsed since the engine was created
func (e *Engine) Uptime() time.Duration {
	return e.clock.Now().Sub(e.start)
}

// OnFrame evaluates every trigger against a newly decoded frame
func (e *Engine) OnFrame(ctx context.Context, f *teleinfo.Frame) {
	if e.cfg.HTTPReq.Host != "" {
		if e.cfg.HTTPReq.TriggerPTEC {
			e.checkPeriod(ctx, f)
		}
		if e.cfg.HTTPReq.TriggerSeuils {
			e.checkThresholds(ctx, f)
		}
		if e.cfg.HTTPReq.TriggerAdps {
			e.checkOverrun(ctx, f)
		}
		if e.httpTimer.Expired() {
			e.notifyHTTP(ctx, f, TagUpdate)
		}
	}

	if e.jeedomTimer.Expired() {
		e.notifyJeedom(ctx, f)
	}
	if e.emoncmsTimer.Expired() {
		e.notifyEmoncms(ctx, f)
	}
}

func (e *Engine) checkPeriod(ctx context.Context, f *teleinfo.Frame) {
	ptec, ok := f.Lookup(teleinfo.LabelPTEC)
	if !ok || ptec == e.state.Period {
		return
	}
	e.state.Period = ptec
	if !e.state.PeriodSeen {
		e.state.PeriodSeen = true
		return
	}
	e.notifyHTTP(ctx, f, TagPeriod)
}

func (e *Engine) checkThresholds(ctx context.Context, f *teleinfo.Frame) {
	v, ok := f.Lookup(teleinfo.LabelPAPP)
	if !ok {
		return
	}
	papp := leadingInt(v)
	if papp == 0 {
		return
	}

	switch {
	case !e.state.Above && papp >= int64(e.cfg.HTTPReq.SeuilHaut):
		e.state.Above = true
		e.notifyHTTP(ctx, f, TagHigh)
	case e.state.Above && papp <= int64(e.cfg.HTTPReq.SeuilBas):
		e.state.Above = false
		e.notifyHTTP(ctx, f, TagLow)
	}
}

func (e *Engine) checkOverrun(ctx context.Context, f *teleinfo.Frame) {
	_, present := f.Lookup(teleinfo.LabelADPS)
	switch {
	case present && !e.state.Overrun:
		e.state.Overrun = true
		e.notifyHTTP(ctx, f, TagOverrun)
	case !present && e.state.Overrun:
		e.state.Overrun = false
		e.notifyHTTP(ctx, f, TagNormal)
	}
}

// leadingInt parses the leading decimal digits of v, 0 when there are none
func leadingInt(v string) int64 {
	var n int64
	for i := 0; i < len(v) && v[i] >= '0' && v[i] <= '9'; i++ {
		n = n*10 + int64(v[i]-'0')
	}
	return n
}

func (e *Engine) notifyHTTP(ctx context.Context, f *teleinfo.Frame, tag Tag) {
	cfg := e.cfg.HTTPReq
	req := Request{
		Tag:    tag,
		Host:   cfg.Host,
		Port:   cfg.Port,
		Path:   Expand(cfg.URL, f, Vars{Type: tag, ChipID: e.cfg.Options.ChipID}),
		Method: http.MethodGet,
	}
	if cfg.UsePost {
		req.Method = http.MethodPost
		req.Body = f.DictJSON(e.Uptime())
		req.ContentType = "application/json"
	}
	e.dispatch(ctx, TargetHTTP, f, req)
}

func (e *Engine) notifyJeedom(ctx context.Context, f *teleinfo.Frame) {
	cfg := e.cfg.Jeedom
	if cfg.Host == "" {
		return
	}

	req := Request{
		Tag:    TagJeedom,
		Host:   cfg.Host,
		Port:   cfg.Port,
		Path:   JeedomURL(cfg, f),
		Method: http.MethodGet,
	}
	if cfg.UsePost {
		req.Path = pathOrRoot(cfg.URL) + "?api=" + cfg.APIKey
		req.Method = http.MethodPost
		req.Body = jeedomFrame(cfg, f).DictJSON(e.Uptime())
		req.ContentType = "application/json"
	}
	e.dispatch(ctx, TargetJeedom, f, req)
}

func (e *Engine) notifyEmoncms(ctx context.Context, f *teleinfo.Frame) {
	cfg := e.cfg.Emoncms
	if cfg.Host == "" || f.IsEmpty() {
		return
	}
	e.dispatch(ctx, TargetEmoncms, f, Request{
		Tag:    TagEmoncms,
		Host:   cfg.Host,
		Port:   cfg.Port,
		Path:   EmoncmsURL(cfg, f),
		Method: http.MethodGet,
	})
}

func (e *Engine) dispatch(ctx context.Context, target Target, f *teleinfo.Frame, req Request) {
	log.WithFields(log.Fields{"target": target, "tag": req.Tag}).Debug("notify")

	var err error
	if e.sender != nil {
		err = e.sender.Send(ctx, req)
	}

	n := Notification{Target: target, Tag: req.Tag, Request: req, Frame: f, Err: err}
	for _, fn := range e.listeners {
		fn(n)
	}
}
