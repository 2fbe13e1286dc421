// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package monitor

import (
	"fmt"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/device"
	"github.com/sapphire-mesh/sapphire/internal/notify"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// DeviceByID satisfies internal/notify.Applier: the notification server
// uses this to find the live session for a pushed notification's device id
// (§4.E). A device with no session currently dialed -- offline, or between
// retries -- has nothing to apply the notification to.
func (m *Monitor) DeviceByID(deviceID uint64) (notify.Target, bool) {
	m.mu.Lock()
	dm, ok := m.sessions[deviceID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	dm.mu.Lock()
	sess := dm.sess
	dm.mu.Unlock()
	if sess == nil {
		return nil, false
	}
	return sessionTarget{sess: sess}, true
}

// sessionTarget adapts a *device.Session to internal/notify.Target.
type sessionTarget struct {
	sess *device.Session
}

func (t sessionTarget) ParamName(group, id int) (string, bool) {
	return t.sess.Device().ParamName(group, id)
}

func (t sessionTarget) KVType(name string) (protocol.KVType, bool) {
	meta, ok := t.sess.Device().KVMeta(name)
	if !ok {
		return 0, false
	}
	return meta.Type, true
}

func (t sessionTarget) ApplyNotification(group, id int, value interface{}, at, now time.Time) error {
	if t.sess == nil {
		return fmt.Errorf("monitor: no live session")
	}
	return t.sess.ReceiveNotification(group, id, value, at, now)
}
