// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/sapphire-mesh/sapphire/pkg/log"
	"github.com/sapphire-mesh/sapphire/pkg/nats"
)

// ProgramConfig is the decoded shape of the process config file. Defaults
// below are overwritten in-place by Init when a config file is present.
type ProgramConfig struct {
	OriginID string `json:"origin-id"`

	Nats nats.NatsConfig `json:"nats"`

	DeviceCommandPort    int `json:"device-command-port"`
	GatewayDiscoveryPort int `json:"gateway-discovery-port"`
	GatewayTimePort      int `json:"gateway-time-port"`
	NotificationPort     int `json:"notification-port"`

	RdgPoolSize   int `json:"rdg-pool-size"`
	RdgMaxRetries int `json:"rdg-max-retries"`

	ScannerInterval     string `json:"scanner-interval"`
	WatchdogTimeout     string `json:"watchdog-timeout"`
	MonitorRetryTimeout string `json:"monitor-retry-timeout"`

	KVMetaCacheDB      string `json:"kv-meta-cache-db"`
	KVMetaCacheEntries int    `json:"kv-meta-cache-entries"`

	LongpollQueueSize int    `json:"longpoll-queue-size"`
	LongpollWait      string `json:"longpoll-wait"`

	BootstrapGrace string `json:"bootstrap-grace"`

	LogLevel string `json:"loglevel"`
	LogDate  bool   `json:"logdate"`
	Gops     bool   `json:"gops"`
}

// Keys holds the global, process-wide configuration. Every package reads
// its settings from here rather than threading a config value around,
// matching the teacher's package-level `Keys` pattern.
var Keys = ProgramConfig{
	DeviceCommandPort:      16385,
	GatewayDiscoveryPort:   25002,
	GatewayTimePort:        25003,
	NotificationPort:       59999,
	RdgPoolSize:            4,
	RdgMaxRetries:          5,
	ScannerInterval:        "8s",
	WatchdogTimeout:        "2m",
	MonitorRetryTimeout:    "60s",
	KVMetaCacheDB:          "./var/kvmeta.db",
	KVMetaCacheEntries:     256,
	LongpollQueueSize:      512,
	LongpollWait:           "60s",
	BootstrapGrace:         "1s",
	LogLevel:               "info",
}

// Init loads and validates the config file at flagConfigFile, if any, and
// merges it over Keys. A missing file is not an error (defaults stand); a
// malformed or schema-invalid one aborts the process, same as the teacher.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		return
	}

	Validate(configSchema, raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatal(err)
	}
}
