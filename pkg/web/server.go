// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package web serves the current frame over HTTP, server-sent events and
// websockets.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/notify"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// Status is reported by /system.json
type Status struct {
	Version      string  `json:"version"`
	Uptime       int64   `json:"uptime"`
	UptimeText   string  `json:"uptime_text"`
	Frames       uint64  `json:"frames"`
	ValidFrames  uint64  `json:"valid_frames"`
	DecodeErrors uint64  `json:"decode_errors"`
	FrameRate    float64 `json:"frame_rate"`
	SSEClients   int     `json:"sse_clients"`
	WSClients    int     `json:"ws_clients"`
}

// StatusFunc returns a consistent snapshot of the decoder counters
type StatusFunc func() Status

// jsonView adapts marshalled data to teleinfo.Serializable
type jsonView []byte

func (v jsonView) JSON() []byte { return v }

// Server exposes the frame buffer
type Server struct {
	buf    *teleinfo.FrameBuffer
	cfg    *config.Config
	status StatusFunc
	start  time.Time
	clock  teleinfo.Clock

	sse *SSEHub
	ws  *WSHub
}

// NewServer creates a server reading from buf
func NewServer(buf *teleinfo.FrameBuffer, cfg *config.Config, status StatusFunc, clock teleinfo.Clock) *Server {
	if clock == nil {
		clock = teleinfo.SystemClock{}
	}
	return &Server{
		buf:    buf,
		cfg:    cfg,
		status: status,
		start:  clock.Now(),
		clock:  clock,
		sse:    NewSSEHub(MaxSSEClients, time.Duration(cfg.Web.SSEFreq)*time.Second, clock),
		ws:     NewWSHub(),
	}
}

// SSE returns the server-sent events hub
func (s *Server) SSE() *SSEHub { return s.sse }

// WS returns the websocket hub
func (s *Server) WS() *WSHub { return s.ws }

// Uptime returns the time since the server was created
func (s *Server) Uptime() time.Duration {
	return s.clock.Now().Sub(s.start)
}

// Router returns the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/json", s.serve(func() teleinfo.Serializable {
		return teleinfo.DictView{Frame: s.buf.Frame(), Uptime: s.Uptime()}
	}))
	r.Get("/tinfo.json", s.serve(func() teleinfo.Serializable {
		return teleinfo.ArrayView{Frame: s.buf.Frame()}
	}))
	r.Get("/emoncms.json", s.serve(func() teleinfo.Serializable {
		return notify.EmoncmsView{Frame: s.buf.Frame()}
	}))
	r.Get("/config.json", s.serve(func() teleinfo.Serializable {
		return s.cfg
	}))
	r.Get("/system.json", s.serve(s.systemView))
	r.Get("/tinfo.txt", s.handleText)
	r.Get("/sse/tinfo.json", s.handleSSE)
	r.Get("/ws", s.handleWS)

	return r
}

// serve renders any Serializable query kind
func (s *Server) serve(view func() teleinfo.Serializable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(view().JSON())
	}
}

func (s *Server) systemView() teleinfo.Serializable {
	var st Status
	if s.status != nil {
		st = s.status()
	}
	up := s.Uptime()
	st.Uptime = int64(up / time.Second)
	st.UptimeText = teleinfo.FormatDuration(up)
	st.SSEClients = s.sse.Clients()
	st.WSClients = s.ws.Clients()

	data, err := json.Marshal(st)
	if err != nil {
		return jsonView("{}")
	}
	return jsonView(data)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	f := s.buf.Frame()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if f.IsEmpty() {
		w.Write([]byte("\n"))
		return
	}
	w.Write([]byte(f.TimestampISO8601() + "\n" + f.ASCII()))
}

// Publish pushes a new frame to connected SSE and websocket clients
func (s *Server) Publish(f *teleinfo.Frame) {
	if f.IsEmpty() {
		return
	}
	if s.sse.Clients() == 0 && s.ws.Clients() == 0 {
		return
	}
	data := f.DictJSON(s.Uptime())
	s.sse.Publish(data)
	s.ws.Broadcast(data)
}

// ListenAndServe runs the HTTP server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	go s.ws.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("web server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  ww.Status(),
			"latency": time.Since(start),
			"request": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
