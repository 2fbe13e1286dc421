// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package notify implements the unsolicited device notification server
// (§4.E): a UDP/RDG listener that applies pushed parameter changes to the
// exchange without the monitor ever having to poll for them.
package notify

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/log"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
	"github.com/sapphire-mesh/sapphire/pkg/rdg"
)

// Port is the fixed UDP port the notification server binds (§6).
const Port = 59999

// perDeviceRate/perDeviceBurst bound how fast one device's notifications are
// decoded and applied, so a single misbehaving device flooding the socket
// cannot starve the exchange lock for every other device's notifications.
const (
	perDeviceRate  = 50
	perDeviceBurst = 100
)

// ntpEpoch is the NTP era-0 epoch (1900-01-01), used to convert a
// notification's {ntp_seconds, ntp_fraction} pair to a time.Time.
var ntpEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Applier applies one decoded, type-checked notification to the device
// bound to deviceID. internal/monitor.Monitor satisfies this, returning an
// adapter over the device's live internal/device.Session.
type Applier interface {
	DeviceByID(deviceID uint64) (Target, bool)
}

// Target is the subset of a device session the notification server needs:
// translating a wire address to a parameter name, checking its declared
// type, and applying the decoded value. at is the notification's
// NTP-derived timestamp; now is this process's wall-clock receipt time.
type Target interface {
	ParamName(group, id int) (string, bool)
	KVType(name string) (protocol.KVType, bool)
	ApplyNotification(group, id int, value interface{}, at, now time.Time) error
}

// Server is the UDP/RDG-framed notification listener (§4.E).
type Server struct {
	rdg     *rdg.Server
	devices Applier
	running func() bool

	mu       sync.Mutex
	limiters map[uint64]*rate.Limiter
}

// New binds the fixed notification port and returns a Server ready to run.
func New(devices Applier, running func() bool) (*Server, error) {
	srv, err := rdg.Listen(&net.UDPAddr{Port: Port})
	if err != nil {
		return nil, err
	}
	return &Server{rdg: srv, devices: devices, running: running, limiters: make(map[uint64]*rate.Limiter)}, nil
}

// Close stops accepting datagrams.
func (s *Server) Close() error { return s.rdg.Close() }

// Run serves notifications until running() returns false (§4.E: "continues
// on per-message exceptions; only fatal socket errors stop it").
func (s *Server) Run() error {
	return s.rdg.Serve(s.running, func(from *net.UDPAddr, payload []byte) []byte {
		s.handle(payload)
		return nil
	})
}

func (s *Server) handle(payload []byte) {
	msg := protocol.NewNotification()
	if err := msg.Unpack(payload); err != nil {
		log.Warnf("notify: malformed payload: %v", err)
		return
	}

	target, ok := s.devices.DeviceByID(msg.DeviceID())
	if !ok {
		log.Debugf("notify: unknown device_id %d", msg.DeviceID())
		return
	}

	if !s.limiterFor(msg.DeviceID()).Allow() {
		log.Warnf("notify: device %d: notification rate limit exceeded, dropping", msg.DeviceID())
		return
	}

	name, ok := target.ParamName(int(msg.Group()), int(msg.ID()))
	if !ok {
		log.Warnf("notify: device %d: unrecognized group %d id %d", msg.DeviceID(), msg.Group(), msg.ID())
		return
	}

	wantType, ok := target.KVType(name)
	if !ok || wantType != msg.DataType() {
		// Conservative per the source: a data_type mismatch is dropped,
		// never speculatively re-decoded.
		log.Warnf("notify: device %d: param %q data_type mismatch", msg.DeviceID(), name)
		return
	}

	value, err := decodeValue(msg.DataType(), msg.Data())
	if err != nil {
		log.Warnf("notify: device %d: param %q: %v", msg.DeviceID(), name, err)
		return
	}

	at := ntpEpoch.Add(time.Duration(msg.NTPSeconds())*time.Second + ntpFractionToDuration(msg.NTPFraction()))
	now := time.Now().UTC()
	if err := target.ApplyNotification(int(msg.Group()), int(msg.ID()), value, at, now); err != nil {
		log.Warnf("notify: device %d: apply %q: %v", msg.DeviceID(), name, err)
	}
}

// limiterFor returns the per-device token bucket, creating one the first
// time a device is seen.
func (s *Server) limiterFor(deviceID uint64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limiters == nil {
		s.limiters = make(map[uint64]*rate.Limiter)
	}
	l, ok := s.limiters[deviceID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(perDeviceRate), perDeviceBurst)
		s.limiters[deviceID] = l
	}
	return l
}

func ntpFractionToDuration(fraction uint32) time.Duration {
	return time.Duration(float64(fraction) / (1 << 32) * float64(time.Second))
}

// decodeValue unpacks a notification's raw data according to its declared
// data_type and returns the decoded value as a plain Go type, mirroring
// internal/device's fieldValue so the same KV value ends up shaped the same
// way whether it arrived by poll or by push.
func decodeValue(dtype protocol.KVType, raw []byte) (interface{}, error) {
	f, err := protocol.NewField(dtype)
	if err != nil {
		return nil, err
	}
	if _, err := f.Unpack(raw); err != nil {
		return nil, err
	}

	switch v := f.(type) {
	case *field.Bool:
		return v.V, nil
	case *field.Int8:
		return v.V, nil
	case *field.Int16:
		return v.V, nil
	case *field.Int32:
		return v.V, nil
	case *field.Int64:
		return v.V, nil
	case *field.Uint8:
		return v.V, nil
	case *field.Uint16:
		return v.V, nil
	case *field.Uint32:
		return v.V, nil
	case *field.Uint64:
		return v.V, nil
	case *field.Float32:
		return v.V, nil
	case *field.FixedString:
		return v.V, nil
	case *field.IPv4:
		return v.String(), nil
	case *field.MAC48:
		return v.String(), nil
	case *field.MAC64:
		return v.String(), nil
	case *field.Key128:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", f), nil
	}
}
