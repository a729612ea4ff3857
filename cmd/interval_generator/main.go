// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/inertial_intervals/internal/app"
	"github.com/relabs-tech/inertial_intervals/internal/config"
)

func main() {
	configPath := flag.String("config", "./inertial_config.txt", "path to configuration file (.txt, .toml or .yaml)")
	flag.Parse()

	log.Println("starting inertial interval generator (MQTT → intervals)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunIntervalGenerator(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
