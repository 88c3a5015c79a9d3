// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/teleostat/pkg/config"
)

// Connection is a TIC byte stream. Write is only used by simulate.
type Connection interface {
	io.ReadWriteCloser
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// serialLink is a meter port. With mask set, the port runs 8N1 and the
// parity bit carried in bit 7 is dropped.
type serialLink struct {
	serial.Port
	mask bool
}

func (s *serialLink) Read(p []byte) (int, error) {
	n, err := s.Port.Read(p)
	if s.mask {
		for i := range p[:n] {
			p[i] &= 0x7F
		}
	}
	return n, err
}

// wsLink reassembles the byte stream from a bridge's messages
type wsLink struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool
}

func (w *wsLink) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	for len(w.pending) == 0 {
		// bridges send either text or binary chunks
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		w.pending = data
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsLink) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsLink) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a meter port at 7E1, or 8N1 with the parity bit
// masked for adapters that cannot do 7-bit framing
func OpenSerialConnection(portName string, baudRate int, mask8N1 bool) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 7,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
	if mask8N1 {
		mode.DataBits = 8
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &serialLink{Port: port, mask: mask8N1}, nil
}

// wsCredentials picks Basic auth from the URL userinfo, then --username with
// a password from the environment or the terminal
func wsCredentials(u *url.URL) (string, string, error) {
	if u.User != nil {
		password, _ := u.User.Password()
		return u.User.Username(), password, nil
	}
	if wsUsername == "" {
		return "", "", nil
	}
	password, err := GetPassword()
	return wsUsername, password, err
}

// OpenWebSocketConnection dials a TIC bridge
func OpenWebSocketConnection(rawURL string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	username, password, err := wsCredentials(u)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	if username != "" {
		req := http.Request{Header: headers}
		req.SetBasicAuth(username, password)
	}
	u.User = nil

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &wsLink{conn: conn}, nil
}

// GetPassword reads TELEOSTAT_WS_PASSWORD or prompts without echo
func GetPassword() (string, error) {
	if pw := os.Getenv(config.EnvPrefix + "WS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the byte source named by the serial section. A
// websocket URL takes precedence over the port.
func OpenConnection(src config.SerialConfig) (Connection, string, error) {
	switch {
	case src.URL != "":
		conn, err := OpenWebSocketConnection(src.URL, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, "WebSocket: " + redactURL(src.URL), nil

	case src.Port != "":
		conn, err := OpenSerialConnection(src.Port, src.Baud, src.Mask8N1)
		if err != nil {
			return nil, "", err
		}
		framing := "7E1"
		if src.Mask8N1 {
			framing = "8N1 masked"
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud %s", src.Port, src.Baud, framing), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}

// redactURL hides a password embedded in a source URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
