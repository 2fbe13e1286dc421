// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import "github.com/sapphire-mesh/sapphire/pkg/field"

// Gateway-services message ids (u8 msg_type_format).
const (
	MsgPollGateway     = 1
	MsgGatewayInfo     = 2
	MsgGetNetworkTime  = 3
	MsgNetworkTimeInfo = 4
)

// GatewayServices is the registry for discovery and network-time messages
// carried over the gateway-services ports (§6: UDP 25002/25003).
var GatewayServices = buildGatewayServices()

func buildGatewayServices() *Protocol {
	p := NewProtocol("gateway-services", MsgTypeU8)

	p.Register(MsgPollGateway, func() Payload { return NewPollGateway() })
	p.Register(MsgGatewayInfo, func() Payload { return NewGatewayInfo() })
	p.Register(MsgGetNetworkTime, func() Payload { return NewGetNetworkTime() })
	p.Register(MsgNetworkTimeInfo, func() Payload { return NewNetworkTimeInfo() })

	return p
}

// PollGateway is broadcast by the network scanner to discover gateways.
type PollGateway struct{ body *field.Struct }

func NewPollGateway() *PollGateway {
	return &PollGateway{body: &field.Struct{}}
}
func (m *PollGateway) MsgType() int        { return MsgPollGateway }
func (m *PollGateway) Body() *field.Struct { return m.body }

// GatewayInfo is a gateway's reply to PollGateway: its device id and the
// short address it answers on.
type GatewayInfo struct{ body *field.Struct }

func NewGatewayInfo() *GatewayInfo {
	return &GatewayInfo{body: &field.Struct{Fields: []field.Named{
		{Name: "device_id", Field: &field.Uint64{}},
		{Name: "short_addr", Field: &field.Uint16{}},
	}}}
}
func (m *GatewayInfo) MsgType() int        { return MsgGatewayInfo }
func (m *GatewayInfo) Body() *field.Struct { return m.body }
func (m *GatewayInfo) DeviceID() uint64     { return m.body.Get("device_id").(*field.Uint64).V }
func (m *GatewayInfo) ShortAddr() uint16    { return m.body.Get("short_addr").(*field.Uint16).V }

// GetNetworkTime requests the NTP-style time base from a gateway, RDG-framed
// on the dedicated network-time port.
type GetNetworkTime struct{ body *field.Struct }

func NewGetNetworkTime() *GetNetworkTime {
	return &GetNetworkTime{body: &field.Struct{}}
}
func (m *GetNetworkTime) MsgType() int        { return MsgGetNetworkTime }
func (m *GetNetworkTime) Body() *field.Struct { return m.body }

// NetworkTimeInfo is the gateway's reply: the device-local microsecond
// counter paired with the corresponding NTP seconds/fraction, used to build
// a Gateway's network-time base (§3).
type NetworkTimeInfo struct{ body *field.Struct }

func NewNetworkTimeInfo() *NetworkTimeInfo {
	return &NetworkTimeInfo{body: &field.Struct{Fields: []field.Named{
		{Name: "wcom_network_time_base", Field: &field.Uint64{}},
		{Name: "ntp_seconds", Field: &field.Uint32{}},
		{Name: "ntp_fraction", Field: &field.Uint32{}},
	}}}
}
func (m *NetworkTimeInfo) MsgType() int        { return MsgNetworkTimeInfo }
func (m *NetworkTimeInfo) Body() *field.Struct { return m.body }
func (m *NetworkTimeInfo) WcomBase() uint64 {
	return m.body.Get("wcom_network_time_base").(*field.Uint64).V
}
func (m *NetworkTimeInfo) NTPSeconds() uint32 { return m.body.Get("ntp_seconds").(*field.Uint32).V }
func (m *NetworkTimeInfo) NTPFraction() uint32 {
	return m.body.Get("ntp_fraction").(*field.Uint32).V
}
