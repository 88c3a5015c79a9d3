// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Teleostat - Teleinformation frame decoder and notifier
//
// Reads the TIC stream of a French electricity meter, serves the latest
// frame over HTTP and relays it to home automation targets.

package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
