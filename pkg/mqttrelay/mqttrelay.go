// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttrelay publishes frames and notification events to an MQTT broker.
package mqttrelay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/notify"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("mqtt not connected")

const connectTimeout = 10 * time.Second

// Publisher sends one message to a topic
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// PahoPublisher publishes through a paho client
type PahoPublisher struct {
	client mqtt.Client
	qos    byte
}

// Connect opens a connection to the broker in cfg
func Connect(cfg config.MQTTConfig) (*PahoPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.WithField("broker", cfg.Broker).Info("mqtt connected")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}
	return &PahoPublisher{client: client, qos: 1}, nil
}

// Publish implements Publisher
func (p *PahoPublisher) Publish(topic string, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	return token.Error()
}

// Close disconnects from the broker
func (p *PahoPublisher) Close() {
	p.client.Disconnect(250)
}

// Event is the payload published for each notification
type Event struct {
	Target    string `json:"target"`
	Tag       string `json:"tag"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Relay publishes the dict rendering of frames to <topic>/tinfo at most once
// per period, and every notification to <topic>/event
type Relay struct {
	pub   Publisher
	topic string
	timer *notify.PeriodicTimer
}

// NewRelay creates a relay. A zero freq publishes every frame.
func NewRelay(cfg config.MQTTConfig, pub Publisher, clock teleinfo.Clock) *Relay {
	r := &Relay{pub: pub, topic: cfg.Topic}
	if cfg.Freq > 0 {
		r.timer = notify.NewPeriodicTimer(clock, time.Duration(cfg.Freq)*time.Second)
		r.timer.Trigger()
	}
	return r
}

// FrameTopic returns the topic frames are published to
func (r *Relay) FrameTopic() string {
	return r.topic + "/tinfo"
}

// EventTopic returns the topic notifications are published to
func (r *Relay) EventTopic() string {
	return r.topic + "/event"
}

// OnFrame publishes f when the relay period has elapsed
func (r *Relay) OnFrame(f *teleinfo.Frame, uptime time.Duration) {
	if f.IsEmpty() {
		return
	}
	if r.timer != nil && !r.timer.Expired() {
		return
	}
	if err := r.pub.Publish(r.FrameTopic(), f.DictJSON(uptime)); err != nil {
		log.WithError(err).WithField("topic", r.FrameTopic()).Warn("mqtt publish failed")
	}
}

// OnNotification publishes a notification event
func (r *Relay) OnNotification(n notify.Notification) {
	ev := Event{
		Target:    string(n.Target),
		Tag:       string(n.Tag),
		Timestamp: n.Frame.TimestampISO8601(),
	}
	if n.Err != nil {
		ev.Error = n.Err.Error()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := r.pub.Publish(r.EventTopic(), payload); err != nil {
		log.WithError(err).WithField("topic", r.EventTopic()).Warn("mqtt publish failed")
	}
}
