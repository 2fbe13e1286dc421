// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import "github.com/sapphire-mesh/sapphire/pkg/field"

// Notification is the unsolicited payload devices push to the notification
// server (§4.E, §6): {flags, device_id, ntp_timestamp, group, id,
// data_type, data...}. data's length and type are decided by data_type and
// consumed to exhaustion.
type Notification struct{ body *field.Struct }

// BootModeFlag marks a notification sent right after a device enters boot
// mode. Nothing reads the flag itself: internal/device.Session moves a
// device offline when a notification carries its "boot_mode" parameter.
const BootModeFlag = 0x01

func newNotificationBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "flags", Field: &field.Uint8{}},
		{Name: "device_id", Field: &field.Uint64{}},
		{Name: "ntp_seconds", Field: &field.Uint32{}},
		{Name: "ntp_fraction", Field: &field.Uint32{}},
		{Name: "group", Field: &field.Uint8{}},
		{Name: "id", Field: &field.Uint8{}},
		{Name: "data_type", Field: &field.Uint8{}},
		{Name: "data", Field: &field.Binary{N: -1}},
	}}
}

// NewNotification builds an empty, zero-valued Notification to Unpack into.
func NewNotification() *Notification { return &Notification{body: newNotificationBody()} }

func (m *Notification) Unpack(buf []byte) error {
	_, err := m.body.Unpack(buf)
	return err
}

func (m *Notification) Pack() []byte { return m.body.Pack() }

func (m *Notification) Flags() uint8      { return m.body.Get("flags").(*field.Uint8).V }
func (m *Notification) IsBootMode() bool  { return m.Flags()&BootModeFlag != 0 }
func (m *Notification) DeviceID() uint64  { return m.body.Get("device_id").(*field.Uint64).V }
func (m *Notification) NTPSeconds() uint32 {
	return m.body.Get("ntp_seconds").(*field.Uint32).V
}
func (m *Notification) NTPFraction() uint32 {
	return m.body.Get("ntp_fraction").(*field.Uint32).V
}
func (m *Notification) Group() uint8      { return m.body.Get("group").(*field.Uint8).V }
func (m *Notification) ID() uint8         { return m.body.Get("id").(*field.Uint8).V }
func (m *Notification) DataType() KVType  { return KVType(m.body.Get("data_type").(*field.Uint8).V) }
func (m *Notification) Data() []byte      { return m.body.Get("data").(*field.Binary).V }
