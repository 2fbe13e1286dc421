// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"os"

	"github.com/sapphire-mesh/sapphire/pkg/log"
)

const envString = `
# NATS credentials, if the broker requires authentication.
#NATS_USERNAME=
#NATS_PASSWORD=

# Seed deriving every device's set-security-key material
# (device.DeriveSecurityKey). Leave unset to skip key provisioning.
#SAPPHIRE_SECURITY_KEY_SEED=
`

const configString = `
{
    "nats": {
        "address": "nats://localhost:4222"
    },
    "device-command-port": 16385,
    "gateway-discovery-port": 25002,
    "gateway-time-port": 25003,
    "notification-port": 59999,
    "rdg-pool-size": 4,
    "rdg-max-retries": 5,
    "scanner-interval": "8s",
    "watchdog-timeout": "2m",
    "monitor-retry-timeout": "60s",
    "kv-meta-cache-db": "./var/kvmeta.db",
    "kv-meta-cache-entries": 256,
    "longpoll-queue-size": 512,
    "longpoll-wait": "60s",
    "bootstrap-grace": "1s",
    "loglevel": "info"
}
`

// initEnv scaffolds a fresh deployment's var directory, config.json and
// .env, mirroring the teacher's -init flag.
func initEnv() {
	if _, err := os.Stat("var"); err == nil {
		log.Fatal("Directory ./var already exists. Cautiously exiting application initialization.")
	}

	if err := os.WriteFile("config.json", []byte(configString), 0o666); err != nil {
		log.Fatalf("Could not write default ./config.json: %s", err.Error())
	}

	if err := os.WriteFile(".env", []byte(envString), 0o666); err != nil {
		log.Fatalf("Could not write default ./.env file: %s", err.Error())
	}

	if err := os.Mkdir("var", 0o777); err != nil {
		log.Fatalf("Could not create default ./var folder: %s", err.Error())
	}
}
