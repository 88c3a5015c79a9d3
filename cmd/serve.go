// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/history"
	"github.com/Thermoquad/teleostat/pkg/mqttrelay"
	"github.com/Thermoquad/teleostat/pkg/notify"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
	"github.com/Thermoquad/teleostat/pkg/web"
)

const (
	senderTimeout = 5 * time.Second
	senderDepth   = 16
	mqttDepth     = 16
	historyDepth  = 64
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Decode frames, serve them over HTTP and send notifications",
	Long: `Run the decoder continuously.

The latest valid frame is served on /json, /tinfo.json, /tinfo.txt,
/emoncms.json and pushed over /sse/tinfo.json and /ws. Tariff period
changes, power thresholds and overrun warnings are sent to the configured
HTTP target; Jeedom, Emoncms and MQTT receive periodic uploads. Frames are
recorded in the history database when a path is configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "HTTP listen address (overrides config)")
}

// pipeline carries one decoded frame to every consumer
type pipeline struct {
	cfg     *config.Config
	decoder *teleinfo.Decoder
	buf     *teleinfo.FrameBuffer
	engine  *notify.Engine
	relay   *mqttrelay.Relay
	history *history.Recorder
	server  *web.Server

	mu    sync.Mutex
	stats *teleinfo.Statistics
}

func (p *pipeline) feed(ctx context.Context, data []byte) {
	for _, b := range data {
		p.decoder.Put(b)

		if err := p.decoder.Err(); err != nil {
			log.WithError(err).Debug("frame discarded")
			p.mu.Lock()
			p.stats.Update(nil, err, nil)
			p.mu.Unlock()
			continue
		}

		if !p.decoder.Ready() {
			continue
		}
		p.buf.CopyFrom(p.decoder)
		p.onFrame(ctx, p.buf.Frame())
	}
}

func (p *pipeline) onFrame(ctx context.Context, f *teleinfo.Frame) {
	anomalies := teleinfo.ValidateFrame(f)
	for _, a := range anomalies {
		log.WithField("anomaly", a.Message).Debug("frame anomaly")
	}
	p.mu.Lock()
	p.stats.Update(f, nil, anomalies)
	p.mu.Unlock()

	p.engine.OnFrame(ctx, f)
	p.server.Publish(f)
	if p.relay != nil {
		p.relay.OnFrame(f, p.server.Uptime())
	}
	if p.history != nil {
		if err := p.history.Record(f); err != nil {
			log.WithError(err).Debug("frame not recorded")
		}
	}
}

func (p *pipeline) status() web.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.CalculateRates()
	return web.Status{
		Version:      version,
		Frames:       p.stats.TotalFrames,
		ValidFrames:  p.stats.ValidFrames,
		DecodeErrors: p.stats.DecodeErrors(),
		FrameRate:    p.stats.FrameRate,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Web.Listen = listenAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := newSource(cfg.Serial)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()
	log.WithField("source", src.Info()).Info("connected")

	sender := notify.NewHTTPSender(senderTimeout, senderDepth)
	sender.Start(ctx)
	defer sender.Close()

	p := &pipeline{
		cfg:     cfg,
		decoder: teleinfo.NewDecoder(teleinfo.WithTrailingDotStrip(cfg.Serial.StripDots)),
		buf:     teleinfo.NewFrameBuffer(),
		stats:   teleinfo.NewStatistics(),
	}

	opts := []notify.EngineOption{
		notify.WithListener(func(n notify.Notification) {
			entry := log.WithFields(log.Fields{"target": n.Target, "tag": n.Tag})
			if n.Err != nil {
				entry.WithError(n.Err).Warn("notification failed")
				return
			}
			entry.Debug("notification queued")
		}),
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqttrelay.Connect(cfg.MQTT)
		if err != nil {
			return err
		}
		defer pub.Close()
		queue := mqttrelay.NewQueue(pub, mqttDepth)
		queue.Start(ctx)
		defer queue.Close()
		p.relay = mqttrelay.NewRelay(cfg.MQTT, queue, nil)
		opts = append(opts, notify.WithListener(p.relay.OnNotification))
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		p.history = history.NewRecorder(store, cfg.History.Keep, historyDepth)
		p.history.Start(ctx)
		defer p.history.Close()
	}

	p.engine = notify.NewEngine(cfg, sender, opts...)
	p.server = web.NewServer(p.buf, cfg, p.status, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.server.ListenAndServe(ctx, cfg.Web.Listen)
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		src.Run(ctx, func(data []byte) { p.feed(ctx, data) })
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		err = <-errCh
	case err = <-errCh:
		stop()
	}
	<-readerDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
