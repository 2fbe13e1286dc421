// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// ErrFirmwareImageMissing is returned by LoadFirmware when fwid names an
// image the caller doesn't have on hand (§4.D).
var ErrFirmwareImageMissing = errors.New("device: firmware image missing")

// KVMetaStore is the persistent fwinfo-hash → raw kvmeta cache consulted
// during Scan (§4.D). internal/kvmetacache.Lookup satisfies this.
type KVMetaStore interface {
	Get(fwinfoHash string) ([]byte, bool, error)
	Put(fwinfoHash string, rawMeta []byte) error
}

// FirmwareStore resolves a firmware id to its image bytes, consulted by
// LoadFirmware (§4.D). internal/firmware.Library satisfies this.
type FirmwareStore interface {
	Get(id [16]byte) ([]byte, bool, error)
}

// Session is the synchronous, per-device command pipeline (§4.D). Each
// request/response round trip is serialized behind mu, which is what makes
// the RDG client's random-id ARQ safe per device (§5: "per-device
// serialization"). An operation made of several round trips (a batched KV
// read or write, a file transfer) is not atomic as a whole.
type Session struct {
	mu         sync.Mutex
	dev        *exchange.Device
	channel    exchange.Channel
	selfOrigin string
	metaStore  KVMetaStore
	fwStore    FirmwareStore
}

// NewSession binds a device session to its exchange object and
// communication channel.
func NewSession(dev *exchange.Device, channel exchange.Channel, selfOrigin string, metaStore KVMetaStore, fwStore FirmwareStore) *Session {
	return &Session{dev: dev, channel: channel, selfOrigin: selfOrigin, metaStore: metaStore, fwStore: fwStore}
}

// Device returns the underlying exchange object.
func (s *Session) Device() *exchange.Device { return s.dev }

func (s *Session) roundTrip(req protocol.Payload) (protocol.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := protocol.DeviceCommand.Encode(req)
	respBytes, err := s.channel.Request(encoded)
	if err != nil {
		if serr := s.dev.SetStatus(s.selfOrigin, exchange.StatusOffline); serr != nil {
			log.Warnf("device: status transition failed for %d: %v", s.dev.DeviceID(), serr)
		}
		return nil, fmt.Errorf("device: unreachable: %w", err)
	}

	resp, err := protocol.DeviceCommandResponse.Decode(respBytes)
	if err != nil {
		return nil, fmt.Errorf("device: decode response: %w", err)
	}
	return resp, nil
}

// enterReboot marks the device "reboot" and schedules the transition to
// "offline" one second later (§4.D state machine).
func (s *Session) enterReboot() {
	if err := s.dev.SetStatus(s.selfOrigin, exchange.StatusReboot); err != nil {
		log.Warnf("device: reboot status transition failed: %v", err)
	}
	go func() {
		time.Sleep(time.Second)
		if err := s.dev.SetStatus(s.selfOrigin, exchange.StatusOffline); err != nil {
			log.Warnf("device: post-reboot status transition failed: %v", err)
		}
	}()
}

// Echo sends s (at most 128 bytes) and expects it back verbatim (§4.D).
func (s *Session) Echo(msg string) (string, error) {
	resp, err := s.roundTrip(protocol.NewEchoRequest(msg))
	if err != nil {
		return "", err
	}
	echo, ok := resp.(*protocol.EchoResponse)
	if !ok {
		return "", fmt.Errorf("device: echo: unexpected response type %T", resp)
	}
	return echo.Payload(), nil
}

// Reboot asks the device to restart (§4.D).
func (s *Session) Reboot() error {
	if _, err := s.roundTrip(protocol.NewRebootRequest()); err != nil {
		return err
	}
	s.enterReboot()
	return nil
}

// SafeMode asks the device to restart into its safe-mode image.
func (s *Session) SafeMode() error {
	if _, err := s.roundTrip(protocol.NewSafeModeRequest()); err != nil {
		return err
	}
	s.enterReboot()
	return nil
}

// FormatFS wipes the device's filesystem.
func (s *Session) FormatFS() error {
	_, err := s.roundTrip(protocol.NewFormatFSRequest())
	return err
}

// ResetConfig restores the device's factory configuration.
func (s *Session) ResetConfig() error {
	_, err := s.roundTrip(protocol.NewResetConfigRequest())
	return err
}

// ResetTimeSync re-arms the device's network-time resync.
func (s *Session) ResetTimeSync() error {
	_, err := s.roundTrip(protocol.NewResetTimeSyncRequest())
	return err
}

// InstallNotificationServer tells the device where to push unsolicited
// notifications (§4.G step 1).
func (s *Session) InstallNotificationServer(addr net.IP, port uint16) error {
	_, err := s.roundTrip(protocol.NewSetKVServerRequest(addr, port))
	return err
}

// SetSecurityKey installs the 128-bit key authenticating future
// device-command traffic (§4.B).
func (s *Session) SetSecurityKey(key [16]byte) error {
	_, err := s.roundTrip(protocol.NewSetSecurityKeyRequest(key))
	return err
}

// RequestRoute asks the device to (re)build its routing table, consulted
// afterward through GetRouteInfo (§4.D).
func (s *Session) RequestRoute() error {
	_, err := s.roundTrip(protocol.NewRequestRouteRequest())
	return err
}

// LoadFirmware flashes the device with the image named by fwid, or with its
// currently assigned firmware if fwid is nil (§4.D). The image is staged as
// "firmware.bin" over the ordinary file-transfer path before the device is
// told to load it.
func (s *Session) LoadFirmware(fwid *[16]byte) error {
	var id [16]byte
	if fwid != nil {
		id = *fwid
	} else {
		v, _ := s.dev.Get("firmware_id")
		hexID, _ := v.(string)
		decoded, err := hex.DecodeString(hexID)
		if err != nil || len(decoded) != 16 {
			return ErrFirmwareImageMissing
		}
		copy(id[:], decoded)
	}

	image, ok, err := s.fwStore.Get(id)
	if err != nil {
		return fmt.Errorf("device: load_firmware: %w", err)
	}
	if !ok {
		return ErrFirmwareImageMissing
	}

	if err := s.PutFile("firmware.bin", image); err != nil {
		return fmt.Errorf("device: load_firmware: %w", err)
	}

	if _, err := s.roundTrip(protocol.NewLoadFirmwareRequest(id)); err != nil {
		return fmt.Errorf("device: load_firmware: %w", err)
	}
	s.enterReboot()
	return nil
}

// ReceiveNotification applies an unsolicited device_command_response-style
// push from the notification server to the bound device object (§4.D,
// §4.E). msg's group/id is translated to a parameter name through the
// device's KV-meta table; an unrecognized (group, id) is reported as
// exchange.ErrUnknownKey. at is the NTP-derived timestamp carried in the
// notification and is used for the value application; now is the wall-clock
// time the notification was received and is what last_notification_at is
// stamped with, since the watchdog (internal/monitor) always compares
// last_notification_at against wall-clock time, never a device's own clock.
func (s *Session) ReceiveNotification(group, id int, value interface{}, at, now time.Time) error {
	name, ok := s.dev.ParamName(group, id)
	if !ok {
		return fmt.Errorf("device: receive_notification: group %d id %d: %w", group, id, exchange.ErrUnknownKey)
	}

	if err := s.dev.Set(s.selfOrigin, name, value); err != nil {
		return err
	}
	s.dev.Touch(now)

	if name == "boot_mode" {
		return s.dev.SetStatus(s.selfOrigin, exchange.StatusOffline)
	}
	if s.dev.Status() != exchange.StatusOnline {
		return s.dev.SetStatus(s.selfOrigin, exchange.StatusOnline)
	}
	return nil
}
