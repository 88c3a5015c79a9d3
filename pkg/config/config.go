// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the teleostat TOML configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "teleostat.toml"

// EnvPrefix prefixes every environment override
const EnvPrefix = "TELEOSTAT_"

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete teleostat configuration
type Config struct {
	Serial  SerialConfig  `toml:"serial" json:"serial"`
	Web     WebConfig     `toml:"web" json:"web"`
	Emoncms EmoncmsConfig `toml:"emoncms" json:"emoncms"`
	Jeedom  JeedomConfig  `toml:"jeedom" json:"jeedom"`
	HTTPReq HTTPReqConfig `toml:"httpreq" json:"httpreq"`
	MQTT    MQTTConfig    `toml:"mqtt" json:"mqtt"`
	History HistoryConfig `toml:"history" json:"history"`
	Options OptionsConfig `toml:"options" json:"options"`
}

// SerialConfig selects the byte source
type SerialConfig struct {
	Port      string `toml:"port" json:"port"`
	Baud      int    `toml:"baud" json:"baud"`
	URL       string `toml:"url" json:"url"` // websocket source, replaces Port when set
	StripDots bool   `toml:"strip_dots" json:"strip_dots"`
	Mask8N1   bool   `toml:"mask_8n1" json:"mask_8n1"` // open 8N1 and drop the parity bit
}

// WebConfig configures the query surface
type WebConfig struct {
	Listen  string `toml:"listen" json:"listen"`
	SSEFreq uint32 `toml:"sse_freq" json:"sse_freq"` // minimum seconds between SSE pushes, 0 = every frame
}

// EmoncmsConfig configures the Emoncms relay
type EmoncmsConfig struct {
	Host   string `toml:"host" json:"host"`
	Port   uint16 `toml:"port" json:"port"`
	URL    string `toml:"url" json:"url"`
	APIKey string `toml:"apikey" json:"apikey"`
	Node   uint8  `toml:"node" json:"node"`
	Freq   uint32 `toml:"freq" json:"freq"`
}

// JeedomConfig configures the Jeedom relay
type JeedomConfig struct {
	Host    string `toml:"host" json:"host"`
	Port    uint16 `toml:"port" json:"port"`
	URL     string `toml:"url" json:"url"`
	APIKey  string `toml:"apikey" json:"apikey"`
	ADCO    string `toml:"adco" json:"adco"` // replaces the meter address when set
	Freq    uint32 `toml:"freq" json:"freq"`
	UsePost bool   `toml:"use_post" json:"use_post"`
}

// HTTPReqConfig configures the templated HTTP notification target
type HTTPReqConfig struct {
	Host          string `toml:"host" json:"host"`
	Port          uint16 `toml:"port" json:"port"`
	URL           string `toml:"url" json:"url"`
	Freq          uint32 `toml:"freq" json:"freq"`
	TriggerPTEC   bool   `toml:"trigger_ptec" json:"trigger_ptec"`
	TriggerAdps   bool   `toml:"trigger_adps" json:"trigger_adps"`
	TriggerSeuils bool   `toml:"trigger_seuils" json:"trigger_seuils"`
	SeuilHaut     uint32 `toml:"seuil_haut" json:"seuil_haut"`
	SeuilBas      uint32 `toml:"seuil_bas" json:"seuil_bas"`
	UsePost       bool   `toml:"use_post" json:"use_post"`
}

// MQTTConfig configures the MQTT relay. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `toml:"broker" json:"broker"`
	ClientID string `toml:"client_id" json:"client_id"`
	Username string `toml:"username" json:"username"`
	Password string `toml:"password" json:"password"`
	Topic    string `toml:"topic" json:"topic"`
	Freq     uint32 `toml:"freq" json:"freq"`
}

// HistoryConfig configures the frame history store. An empty path disables it.
type HistoryConfig struct {
	Path string `toml:"path" json:"path"`
	Keep int    `toml:"keep" json:"keep"`
}

// OptionsConfig holds device-wide settings
type OptionsConfig struct {
	ChipID string `toml:"chip_id" json:"chip_id"`
}

// DefaultConfig returns the configuration written on first run
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			Baud: 1200,
		},
		Web: WebConfig{
			Listen: ":8080",
		},
		Emoncms: EmoncmsConfig{
			Host: "emoncms.org",
			Port: 80,
			URL:  "/input/post.json",
		},
		Jeedom: JeedomConfig{
			Port: 80,
			URL:  "/plugins/teleinfo/core/php/jeeTeleinfo.php",
		},
		HTTPReq: HTTPReqConfig{
			Port:      80,
			URL:       "/json.htm?type=command&param=udevice&idx=1&nvalue=0&svalue=$HCHP;$HCHC;0;0;$PAPP;0",
			SeuilHaut: 5900,
			SeuilBas:  4200,
		},
		MQTT: MQTTConfig{
			ClientID: "teleostat",
			Topic:    "teleostat",
		},
		History: HistoryConfig{
			Keep: 10000,
		},
		Options: OptionsConfig{
			ChipID: defaultChipID(),
		},
	}
}

func defaultChipID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "teleostat"
	}
	return host
}

// Load reads the configuration at path, creating it with defaults when it
// does not exist. A .env file in the working directory and TELEOSTAT_*
// environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// TOML returns the configuration encoded as TOML
func (c *Config) TOML() (string, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// JSON implements teleinfo.Serializable. Secrets are masked.
func (c *Config) JSON() []byte {
	masked := *c
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	data, err := json.Marshal(&masked)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// envBinding maps one TELEOSTAT_* variable to a field
type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func setUint(bits int, field func(*Config, uint64)) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil {
			return err
		}
		field(c, n)
		return nil
	}
}

var envBindings = []envBinding{
	{"SERIAL_PORT", setString(func(c *Config) *string { return &c.Serial.Port })},
	{"SERIAL_BAUD", setUint(31, func(c *Config, n uint64) { c.Serial.Baud = int(n) })},
	{"SERIAL_URL", setString(func(c *Config) *string { return &c.Serial.URL })},
	{"SERIAL_STRIP_DOTS", setBool(func(c *Config) *bool { return &c.Serial.StripDots })},
	{"SERIAL_MASK_8N1", setBool(func(c *Config) *bool { return &c.Serial.Mask8N1 })},
	{"WEB_LISTEN", setString(func(c *Config) *string { return &c.Web.Listen })},
	{"WEB_SSE_FREQ", setUint(32, func(c *Config, n uint64) { c.Web.SSEFreq = uint32(n) })},
	{"EMONCMS_HOST", setString(func(c *Config) *string { return &c.Emoncms.Host })},
	{"EMONCMS_PORT", setUint(16, func(c *Config, n uint64) { c.Emoncms.Port = uint16(n) })},
	{"EMONCMS_URL", setString(func(c *Config) *string { return &c.Emoncms.URL })},
	{"EMONCMS_APIKEY", setString(func(c *Config) *string { return &c.Emoncms.APIKey })},
	{"EMONCMS_NODE", setUint(8, func(c *Config, n uint64) { c.Emoncms.Node = uint8(n) })},
	{"EMONCMS_FREQ", setUint(32, func(c *Config, n uint64) { c.Emoncms.Freq = uint32(n) })},
	{"JEEDOM_HOST", setString(func(c *Config) *string { return &c.Jeedom.Host })},
	{"JEEDOM_PORT", setUint(16, func(c *Config, n uint64) { c.Jeedom.Port = uint16(n) })},
	{"JEEDOM_URL", setString(func(c *Config) *string { return &c.Jeedom.URL })},
	{"JEEDOM_APIKEY", setString(func(c *Config) *string { return &c.Jeedom.APIKey })},
	{"JEEDOM_ADCO", setString(func(c *Config) *string { return &c.Jeedom.ADCO })},
	{"JEEDOM_FREQ", setUint(32, func(c *Config, n uint64) { c.Jeedom.Freq = uint32(n) })},
	{"HTTPREQ_HOST", setString(func(c *Config) *string { return &c.HTTPReq.Host })},
	{"HTTPREQ_PORT", setUint(16, func(c *Config, n uint64) { c.HTTPReq.Port = uint16(n) })},
	{"HTTPREQ_URL", setString(func(c *Config) *string { return &c.HTTPReq.URL })},
	{"HTTPREQ_FREQ", setUint(32, func(c *Config, n uint64) { c.HTTPReq.Freq = uint32(n) })},
	{"HTTPREQ_TRIGGER_PTEC", setBool(func(c *Config) *bool { return &c.HTTPReq.TriggerPTEC })},
	{"HTTPREQ_TRIGGER_ADPS", setBool(func(c *Config) *bool { return &c.HTTPReq.TriggerAdps })},
	{"HTTPREQ_TRIGGER_SEUILS", setBool(func(c *Config) *bool { return &c.HTTPReq.TriggerSeuils })},
	{"HTTPREQ_SEUIL_HAUT", setUint(32, func(c *Config, n uint64) { c.HTTPReq.SeuilHaut = uint32(n) })},
	{"HTTPREQ_SEUIL_BAS", setUint(32, func(c *Config, n uint64) { c.HTTPReq.SeuilBas = uint32(n) })},
	{"HTTPREQ_USE_POST", setBool(func(c *Config) *bool { return &c.HTTPReq.UsePost })},
	{"MQTT_BROKER", setString(func(c *Config) *string { return &c.MQTT.Broker })},
	{"MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Username })},
	{"MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Password })},
	{"MQTT_TOPIC", setString(func(c *Config) *string { return &c.MQTT.Topic })},
	{"HISTORY_PATH", setString(func(c *Config) *string { return &c.History.Path })},
	{"CHIP_ID", setString(func(c *Config) *string { return &c.Options.ChipID })},
}

// ApplyEnv overrides fields from TELEOSTAT_* variables returned by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, EnvPrefix, b.name, v, err)
		}
	}
	return nil
}

// Validate checks values that cannot be corrected by disabling a target
func (c *Config) Validate() error {
	if c.Serial.URL == "" && c.Serial.Port == "" {
		return fmt.Errorf("%w: serial port or url required", ErrInvalid)
	}
	if c.Serial.URL == "" && c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: baud rate must be positive", ErrInvalid)
	}
	if c.HTTPReq.TriggerSeuils && c.HTTPReq.SeuilBas > c.HTTPReq.SeuilHaut {
		return fmt.Errorf("%w: seuil_bas %d above seuil_haut %d", ErrInvalid, c.HTTPReq.SeuilBas, c.HTTPReq.SeuilHaut)
	}
	if c.History.Keep < 0 {
		return fmt.Errorf("%w: history keep must not be negative", ErrInvalid)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt topic required", ErrInvalid)
	}
	return nil
}
