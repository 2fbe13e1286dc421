// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exchange

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// DevicesCollection is the collection tag shared by every Device object
// (§3).
const DevicesCollection = "devices"

// DeviceStatus is the device session's status state machine (§4.D).
type DeviceStatus string

const (
	StatusUnknown DeviceStatus = "unknown"
	StatusOffline DeviceStatus = "offline"
	StatusOnline  DeviceStatus = "online"
	StatusReboot  DeviceStatus = "reboot"
)

// Channel is the opaque communication path to a physical device: the RDG
// client over UDP (pkg/rdg) or the serial fallback, both of which speak
// request/reply with the device-command protocol framing (§3, §6).
type Channel interface {
	Request(payload []byte) ([]byte, error)
	Close() error
}

// Device is the Object subtype for a managed embedded device (§3). It
// layers a KV-meta table and a communication Channel on top of the plain
// replicated attribute map.
type Device struct {
	*Object

	mu         sync.RWMutex
	kvMeta     map[string]protocol.KVMeta
	byGroupID  map[[2]int]string
	groupNames map[int]string

	Channel            Channel
	LastNotificationAt time.Time
}

// NewDevice creates a freshly-discovered device object, owned by originID
// (normally the scanner's process), in the unknown status.
func NewDevice(originID string, deviceID uint64, shortAddr uint16, host net.IP) *Device {
	obj := NewObject("", originID, DevicesCollection, map[string]interface{}{
		"device_id":     deviceID,
		"short_addr":    shortAddr,
		"host":          host.String(),
		"device_status": string(StatusUnknown),
	})
	return &Device{
		Object:     obj,
		kvMeta:     make(map[string]protocol.KVMeta),
		byGroupID:  make(map[[2]int]string),
		groupNames: make(map[int]string),
	}
}

// DeviceID returns the 64-bit device identifier.
func (d *Device) DeviceID() uint64 {
	v, _ := d.Get("device_id")
	switch n := v.(type) {
	case uint64:
		return n
	case float64:
		return uint64(n)
	default:
		return 0
	}
}

// Status returns the current device_status attribute.
func (d *Device) Status() DeviceStatus {
	v, _ := d.Get("device_status")
	s, _ := v.(string)
	return DeviceStatus(s)
}

// SetStatus transitions device_status, following §4.D's state machine.
func (d *Device) SetStatus(selfOrigin string, status DeviceStatus) error {
	return d.Set(selfOrigin, "device_status", string(status))
}

// Touch stamps last_notification_at to now, used both by the monitor after
// a successful scan and by the notification server on every inbound
// datagram (§4.E, §4.G).
func (d *Device) Touch(now time.Time) {
	d.mu.Lock()
	d.LastNotificationAt = now
	d.mu.Unlock()
}

// SinceLastNotification reports the time elapsed since the last inbound
// notification, used by the monitor's watchdog phase (§4.G).
func (d *Device) SinceLastNotification(now time.Time) time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.LastNotificationAt.IsZero() {
		return 0
	}
	return now.Sub(d.LastNotificationAt)
}

// SetKVMeta records the (group, id, type, flags) tuple for a discovered
// parameter name (§3: "Holds a private KV meta table").
func (d *Device) SetKVMeta(name string, meta protocol.KVMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kvMeta[name] = meta
	d.byGroupID[[2]int{meta.Group, meta.ID}] = name
}

// SetGroupName records the human-readable name for a whole KV group,
// consulted when a notification arrives with id == protocol.GroupNameID
// (§4.E: "fall back to the group-name table for whole-group ids of 255").
func (d *Device) SetGroupName(group int, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groupNames[group] = name
}

// KVMeta looks up a parameter's meta tuple by name.
func (d *Device) KVMeta(name string) (protocol.KVMeta, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.kvMeta[name]
	return m, ok
}

// ParamName translates a (group, id) wire pair to a parameter name,
// falling back to the group-name table when id is the whole-group
// sentinel (§4.E).
func (d *Device) ParamName(group, id int) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id == int(protocol.GroupNameID) {
		name, ok := d.groupNames[group]
		return name, ok
	}
	name, ok := d.byGroupID[[2]int{group, id}]
	return name, ok
}

// AllKVMeta returns a snapshot of every known parameter's meta tuple,
// keyed by name, used to build get_kv/set_kv batch requests (§4.D).
func (d *Device) AllKVMeta() map[string]protocol.KVMeta {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cp := make(map[string]protocol.KVMeta, len(d.kvMeta))
	for k, v := range d.kvMeta {
		cp[k] = v
	}
	return cp
}

// ErrUnknownKey and ErrReadOnlyKey surface the KV-specific error taxonomy
// from §7 to device-session callers.
var (
	ErrUnknownKey  = fmt.Errorf("exchange: unknown key")
	ErrReadOnlyKey = fmt.Errorf("exchange: read-only key")
)
