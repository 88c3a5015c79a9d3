// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"strconv"
	"strings"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// JeedomURL builds url?api=KEY&LABEL=VALUE... with raw values. The meter
// address is replaced by cfg.ADCO when set.
func JeedomURL(cfg config.JeedomConfig, f *teleinfo.Frame) string {
	var sb strings.Builder
	sb.WriteString(pathOrRoot(cfg.URL))
	sb.WriteString("?api=")
	sb.WriteString(cfg.APIKey)

	var c teleinfo.Cursor
	for {
		label, value, ok := f.Next(&c)
		if !ok {
			break
		}
		if label == teleinfo.LabelADCO && cfg.ADCO != "" {
			value = cfg.ADCO
		}
		sb.WriteByte('&')
		sb.WriteString(label)
		sb.WriteByte('=')
		sb.WriteString(value)
	}
	return sb.String()
}

// jeedomFrame applies the meter address override to a frame
func jeedomFrame(cfg config.JeedomConfig, f *teleinfo.Frame) *teleinfo.Frame {
	if cfg.ADCO == "" {
		return f
	}
	pairs := f.Pairs()
	for i := range pairs {
		if pairs[i].Label == teleinfo.LabelADCO {
			pairs[i].Value = cfg.ADCO
		}
	}
	return teleinfo.NewFrame(f.Timestamp(), pairs)
}

// EmoncmsURL builds url?node=N&apikey=KEY&json={...}. The node parameter is
// omitted when zero.
func EmoncmsURL(cfg config.EmoncmsConfig, f *teleinfo.Frame) string {
	var sb strings.Builder
	sb.WriteString(pathOrRoot(cfg.URL))
	sb.WriteByte('?')
	if cfg.Node > 0 {
		sb.WriteString("node=")
		sb.WriteString(strconv.Itoa(int(cfg.Node)))
		sb.WriteByte('&')
	}
	sb.WriteString("apikey=")
	sb.WriteString(cfg.APIKey)
	sb.WriteString("&json=")
	sb.WriteString(EmoncmsData(f))
	return sb.String()
}

// EmoncmsData renders {LABEL:value,...} with every value mapped to a number
func EmoncmsData(f *teleinfo.Frame) string {
	var sb strings.Builder
	sb.WriteByte('{')

	var c teleinfo.Cursor
	first := true
	for {
		label, value, ok := f.Next(&c)
		if !ok {
			break
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false

		sb.WriteString(label)
		sb.WriteByte(':')
		sb.WriteString(EmoncmsValue(label, value))
	}

	sb.WriteByte('}')
	return sb.String()
}

// EmoncmsView serves the emoncms data part of the current frame
type EmoncmsView struct {
	Frame *teleinfo.Frame
}

// JSON implements teleinfo.Serializable
func (v EmoncmsView) JSON() []byte {
	return []byte(EmoncmsData(v.Frame))
}

var periodCodes = map[string]string{
	"TH..": "1",
	"HC..": "2",
	"HP..": "3",
	"HN..": "4",
	"PM..": "5",
	"HCJB": "6",
	"HCJW": "7",
	"HCJR": "8",
	"HPJB": "9",
	"HPJW": "10",
	"HPJR": "11",
}

// EmoncmsValue maps one group value to the number Emoncms stores
func EmoncmsValue(label, value string) string {
	switch label {
	case teleinfo.LabelOPTARIF:
		switch {
		case strings.HasPrefix(value, "BAS"):
			return "1"
		case strings.HasPrefix(value, "HC."):
			return "2"
		case strings.HasPrefix(value, "EJP"):
			return "3"
		case strings.HasPrefix(value, "BBR"):
			return "4"
		}
		return "0"
	case teleinfo.LabelHHPHC:
		if value == "" {
			return "0"
		}
		return strconv.Itoa(int(value[0]))
	case teleinfo.LabelPTEC:
		if code, ok := periodCodes[value]; ok {
			return code
		}
		return "0"
	}
	n, _ := teleinfo.NormalizeInteger(value)
	return n
}

func pathOrRoot(url string) string {
	if url == "" {
		return "/"
	}
	return url
}
