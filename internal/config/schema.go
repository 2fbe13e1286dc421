// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema is the JSON-schema used to validate a config file before it
// is decoded into Keys. Unknown fields are rejected separately by the
// decoder (DisallowUnknownFields); this schema only checks types/required.
var configSchema = `
{
  "type": "object",
  "properties": {
    "origin-id": {
      "description": "Fixed 128-bit origin id for this process. If empty, a random one is generated once at startup.",
      "type": "string"
    },
    "nats": {
      "description": "Broker connection used by the exchange transport.",
      "type": "object",
      "properties": {
        "address": { "type": "string" },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" }
      }
    },
    "device-command-port": {
      "description": "UDP port the device-command RDG protocol listens/dials on.",
      "type": "integer"
    },
    "gateway-discovery-port": {
      "description": "UDP port used for gateway-services broadcast discovery.",
      "type": "integer"
    },
    "gateway-time-port": {
      "description": "UDP port used for the gateway-services RDG network-time request.",
      "type": "integer"
    },
    "notification-port": {
      "description": "UDP port devices are told to send notifications to (set-kv-server). The notification server itself always binds the fixed port 59999 (notify.Port).",
      "type": "integer"
    },
    "rdg-pool-size": {
      "description": "Maximum number of concurrent RDG client sockets.",
      "type": "integer"
    },
    "rdg-max-retries": {
      "description": "Accepted but not read: RDG client requests always use the fixed rdg.MaxRetries (5) retransmissions.",
      "type": "integer"
    },
    "scanner-interval": {
      "description": "Cadence between network scanner sweeps, parsable by time.ParseDuration.",
      "type": "string"
    },
    "watchdog-timeout": {
      "description": "Maximum time without a notification before a device is considered offline, parsable by time.ParseDuration.",
      "type": "string"
    },
    "monitor-retry-timeout": {
      "description": "How long an offline device's monitor sleeps before retrying, parsable by time.ParseDuration.",
      "type": "string"
    },
    "kv-meta-cache-db": {
      "description": "Path to the sqlite database backing the per-firmware KV-meta cache.",
      "type": "string"
    },
    "kv-meta-cache-entries": {
      "description": "Entry capacity of the in-memory LRU layer in front of the KV-meta cache.",
      "type": "integer"
    },
    "longpoll-queue-size": {
      "description": "Accepted but not read: each long-poll event queue has the fixed capacity longpoll.Capacity (512).",
      "type": "integer"
    },
    "longpoll-wait": {
      "description": "Accepted but not read: a long-poll read blocks for at most the fixed longpoll.ReadTimeout (60s).",
      "type": "string"
    },
    "bootstrap-grace": {
      "description": "How long the exchange subscriber waits after emitting request_objects before clearing its bootstrapping flag, parsable by time.ParseDuration.",
      "type": "string"
    },
    "loglevel": {
      "description": "One of debug, info, notice, warn, err, crit.",
      "type": "string"
    },
    "logdate": {
      "description": "Whether log lines should carry a timestamp (normally left to systemd).",
      "type": "boolean"
    },
    "gops": {
      "description": "Start a github.com/google/gops/agent diagnostics listener.",
      "type": "boolean"
    }
  }
}
`
