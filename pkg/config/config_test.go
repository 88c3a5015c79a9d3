// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ============================================================
// Defaults
// ============================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Emoncms.Host != "emoncms.org" || cfg.Emoncms.URL != "/input/post.json" || cfg.Emoncms.Port != 80 {
		t.Errorf("Emoncms defaults = %+v", cfg.Emoncms)
	}
	if cfg.Jeedom.URL != "/plugins/teleinfo/core/php/jeeTeleinfo.php" || cfg.Jeedom.Host != "" {
		t.Errorf("Jeedom defaults = %+v", cfg.Jeedom)
	}
	if !strings.Contains(cfg.HTTPReq.URL, "$HCHP;$HCHC;0;0;$PAPP;0") {
		t.Errorf("HTTPReq URL = %q", cfg.HTTPReq.URL)
	}
	if cfg.Serial.Baud != 1200 {
		t.Errorf("Baud = %d, want 1200", cfg.Serial.Baud)
	}
	if cfg.HTTPReq.Freq != 0 || cfg.Jeedom.Freq != 0 || cfg.Emoncms.Freq != 0 {
		t.Error("Periodic targets should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults do not validate: %v", err)
	}
}

// ============================================================
// Load / Save
// ============================================================

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "teleostat.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Default file not written: %v", err)
	}
	if cfg.Emoncms.Host != "emoncms.org" {
		t.Errorf("Emoncms host = %q", cfg.Emoncms.Host)
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teleostat.toml")
	content := `
[serial]
port = "/dev/ttyAMA0"
baud = 9600

[httpreq]
host = "sql.home"
port = 88
url = "/tic.php?p=$PAPP"
freq = 15
trigger_ptec = true
seuil_haut = 6000
seuil_bas = 3000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" || cfg.Serial.Baud != 9600 {
		t.Errorf("Serial = %+v", cfg.Serial)
	}
	if cfg.HTTPReq.Host != "sql.home" || cfg.HTTPReq.Port != 88 || !cfg.HTTPReq.TriggerPTEC || cfg.HTTPReq.SeuilHaut != 6000 {
		t.Errorf("HTTPReq = %+v", cfg.HTTPReq)
	}
	// untouched sections keep defaults
	if cfg.Emoncms.URL != "/input/post.json" {
		t.Errorf("Emoncms URL = %q", cfg.Emoncms.URL)
	}
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teleostat.toml")
	if err := os.WriteFile(path, []byte("[serial\nport="), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teleostat.toml")
	cfg := DefaultConfig()
	cfg.Jeedom.Host = "jeedom.home"
	cfg.Jeedom.ADCO = "12345678"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Jeedom.Host != "jeedom.home" || loaded.Jeedom.ADCO != "12345678" {
		t.Errorf("Jeedom = %+v", loaded.Jeedom)
	}
}

// ============================================================
// Environment
// ============================================================

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TELEOSTAT_HTTPREQ_HOST":         "sql.home",
		"TELEOSTAT_HTTPREQ_PORT":         "88",
		"TELEOSTAT_HTTPREQ_TRIGGER_ADPS": "true",
		"TELEOSTAT_EMONCMS_NODE":         "3",
		"TELEOSTAT_CHIP_ID":              "abc123",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.HTTPReq.Host != "sql.home" || cfg.HTTPReq.Port != 88 || !cfg.HTTPReq.TriggerAdps {
		t.Errorf("HTTPReq = %+v", cfg.HTTPReq)
	}
	if cfg.Emoncms.Node != 3 {
		t.Errorf("Node = %d", cfg.Emoncms.Node)
	}
	if cfg.Options.ChipID != "abc123" {
		t.Errorf("ChipID = %q", cfg.Options.ChipID)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "TELEOSTAT_EMONCMS_PORT" {
			return "70000", true
		}
		return "", false
	}
	err := DefaultConfig().ApplyEnv(lookup)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TELEOSTAT_SERIAL_PORT", "/dev/ttyS9")
	path := filepath.Join(t.TempDir(), "teleostat.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyS9" {
		t.Errorf("Port = %q", cfg.Serial.Port)
	}
}

// ============================================================
// Validate / Render
// ============================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no source", func(c *Config) { c.Serial.Port = "" }},
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"inverted thresholds", func(c *Config) {
			c.HTTPReq.TriggerSeuils = true
			c.HTTPReq.SeuilBas = 7000
		}},
		{"negative keep", func(c *Config) { c.History.Keep = -1 }},
		{"mqtt without topic", func(c *Config) {
			c.MQTT.Broker = "tcp://localhost:1883"
			c.MQTT.Topic = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestJSON_MasksPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MQTT.Password = "secret"

	raw := cfg.JSON()
	if strings.Contains(string(raw), "secret") {
		t.Errorf("Password leaked: %s", raw)
	}
	if cfg.MQTT.Password != "secret" {
		t.Error("JSON modified the configuration")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if _, ok := decoded["httpreq"]; !ok {
		t.Error("Missing httpreq section")
	}
}

func TestTOML(t *testing.T) {
	out, err := DefaultConfig().TOML()
	if err != nil {
		t.Fatalf("TOML failed: %v", err)
	}
	for _, want := range []string{"[serial]", "[emoncms]", "[httpreq]", "emoncms.org"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in:\n%s", want, out)
		}
	}
}
