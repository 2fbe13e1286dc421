// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exchange

import (
	"net"
	"sync"
	"time"
)

// ReservedGatewayFirmwareID is the firmware_id value that marks a Device as
// a Gateway (§3: "Gateway (Device subtype, firmware_id = a reserved
// UUID)").
const ReservedGatewayFirmwareID = "00000000-0000-4000-8000-000000000001"

// NetworkTimeValidity is the maximum age of a gateway's network-time base
// pair before it must be treated as stale (§3: "valid for at most five
// minutes after the last resync").
const NetworkTimeValidity = 5 * time.Minute

// Gateway is the Device subtype owning the network-time base pair used to
// translate device-local microsecond counters into absolute timestamps.
type Gateway struct {
	*Device

	mu           sync.RWMutex
	wcomBase     uint64
	ntpBase      time.Time
	lastResyncAt time.Time
}

// NewGateway wraps an already-constructed Device as a Gateway.
func NewGateway(d *Device) *Gateway {
	return &Gateway{Device: d}
}

// SetNetworkTimeBase records a fresh (wcom, ntp) base pair, resetting the
// five-minute validity window.
func (g *Gateway) SetNetworkTimeBase(wcomBase uint64, ntpBase time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wcomBase = wcomBase
	g.ntpBase = ntpBase
	g.lastResyncAt = time.Now().UTC()
}

// Valid reports whether the base pair was resynced within the validity
// window.
func (g *Gateway) Valid(now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lastResyncAt.IsZero() {
		return false
	}
	return now.Sub(g.lastResyncAt) <= NetworkTimeValidity
}

// Translate converts a device-local microsecond counter into an absolute
// timestamp using the current base pair. The caller must check Valid
// first; Translate does not itself reject a stale base.
func (g *Gateway) Translate(wcomMicros uint64) time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	delta := time.Duration(wcomMicros-g.wcomBase) * time.Microsecond
	return g.ntpBase.Add(delta)
}

// IsGatewayFirmware reports whether a device-reported firmware id marks
// the device as a gateway.
func IsGatewayFirmware(firmwareID string) bool {
	return firmwareID == ReservedGatewayFirmwareID
}

// DeviceHost parses a Device's host attribute back into a net.IP.
func DeviceHost(d *Device) net.IP {
	v, _ := d.Get("host")
	s, _ := v.(string)
	return net.ParseIP(s)
}
