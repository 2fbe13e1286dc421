// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"net"

	"github.com/sapphire-mesh/sapphire/pkg/field"
)

// Device-command message ids (u16 msg_type_format), carried on UDP 16385
// (§6). Each has a symmetric response kind in DeviceCommandResponse.
const (
	MsgEcho = iota + 1
	MsgReboot
	MsgSafeMode
	MsgLoadFirmware
	MsgFormatFS
	MsgFileGetID
	MsgFileCreate
	MsgFileRead
	MsgFileWrite
	MsgFileRemove
	MsgResetConfig
	MsgRequestRoute
	MsgResetTimeSync
	MsgSetKV
	MsgGetKV
	MsgSetKVServer
	MsgSetSecurityKey
)

// DeviceCommand is the registry of requests a device session can send to a
// device (§4.B, §4.D).
var DeviceCommand = buildDeviceCommand()

func buildDeviceCommand() *Protocol {
	p := NewProtocol("device-command", MsgTypeU16)

	p.Register(MsgEcho, func() Payload { return NewEchoRequest("") })
	p.Register(MsgReboot, func() Payload { return &RebootRequest{body: &field.Struct{}} })
	p.Register(MsgSafeMode, func() Payload { return &SafeModeRequest{body: &field.Struct{}} })
	p.Register(MsgLoadFirmware, func() Payload { return NewLoadFirmwareRequest(noUUID) })
	p.Register(MsgFormatFS, func() Payload { return &FormatFSRequest{body: &field.Struct{}} })
	p.Register(MsgFileGetID, func() Payload { return NewFileGetIDRequest("") })
	p.Register(MsgFileCreate, func() Payload { return NewFileCreateRequest("") })
	p.Register(MsgFileRead, func() Payload { return &FileReadRequest{body: fileReadBody()} })
	p.Register(MsgFileWrite, func() Payload { return &FileWriteRequest{body: fileWriteBody()} })
	p.Register(MsgFileRemove, func() Payload { return &FileRemoveRequest{body: fileIDBody()} })
	p.Register(MsgResetConfig, func() Payload { return &ResetConfigRequest{body: &field.Struct{}} })
	p.Register(MsgRequestRoute, func() Payload { return &RequestRouteRequest{body: &field.Struct{}} })
	p.Register(MsgResetTimeSync, func() Payload { return &ResetTimeSyncRequest{body: &field.Struct{}} })
	p.Register(MsgSetKV, func() Payload { return &SetKVRequest{body: &field.Binary{N: -1}} })
	p.Register(MsgGetKV, func() Payload { return &GetKVRequest{body: &field.Binary{N: -1}} })
	p.Register(MsgSetKVServer, func() Payload { return &SetKVServerRequest{body: setKVServerBody()} })
	p.Register(MsgSetSecurityKey, func() Payload { return &SetSecurityKeyRequest{body: &field.Struct{Fields: []field.Named{{Name: "key", Field: &field.Key128{}}}}} })

	return p
}

var noUUID = [16]byte{}

// EchoRequest carries up to 128 bytes that the device is expected to
// return verbatim (§4.D `echo`).
type EchoRequest struct{ body *field.Struct }

func NewEchoRequest(s string) *EchoRequest {
	return &EchoRequest{body: &field.Struct{Fields: []field.Named{
		{Name: "payload", Field: &field.FixedString{N: 128, V: s}},
	}}}
}
func (m *EchoRequest) MsgType() int        { return MsgEcho }
func (m *EchoRequest) Body() *field.Struct { return m.body }
func (m *EchoRequest) Payload() string     { return m.body.Get("payload").(*field.FixedString).V }

type RebootRequest struct{ body *field.Struct }

func NewRebootRequest() *RebootRequest           { return &RebootRequest{body: &field.Struct{}} }
func (m *RebootRequest) MsgType() int            { return MsgReboot }
func (m *RebootRequest) Body() *field.Struct     { return m.body }

type SafeModeRequest struct{ body *field.Struct }

func NewSafeModeRequest() *SafeModeRequest { return &SafeModeRequest{body: &field.Struct{}} }
func (m *SafeModeRequest) MsgType() int        { return MsgSafeMode }
func (m *SafeModeRequest) Body() *field.Struct { return m.body }

// LoadFirmwareRequest carries the optional firmware id to load; an all-zero
// uuid means "reload the currently assigned firmware" (§4.D).
type LoadFirmwareRequest struct{ body *field.Struct }

func NewLoadFirmwareRequest(id [16]byte) *LoadFirmwareRequest {
	u := &field.UUID128{}
	copy(u.V[:], id[:])
	return &LoadFirmwareRequest{body: &field.Struct{Fields: []field.Named{
		{Name: "firmware_id", Field: u},
	}}}
}
func (m *LoadFirmwareRequest) MsgType() int        { return MsgLoadFirmware }
func (m *LoadFirmwareRequest) Body() *field.Struct { return m.body }

type FormatFSRequest struct{ body *field.Struct }

func NewFormatFSRequest() *FormatFSRequest { return &FormatFSRequest{body: &field.Struct{}} }
func (m *FormatFSRequest) MsgType() int        { return MsgFormatFS }
func (m *FormatFSRequest) Body() *field.Struct { return m.body }

func fileIDBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{{Name: "name", Field: field.String128()}}}
}

// FileGetIDRequest resolves a path to the device's internal file id.
type FileGetIDRequest struct{ body *field.Struct }

func NewFileGetIDRequest(name string) *FileGetIDRequest {
	b := fileIDBody()
	b.Get("name").(*field.FixedString).V = name
	return &FileGetIDRequest{body: b}
}
func (m *FileGetIDRequest) MsgType() int        { return MsgFileGetID }
func (m *FileGetIDRequest) Body() *field.Struct { return m.body }

type FileCreateRequest struct{ body *field.Struct }

func NewFileCreateRequest(name string) *FileCreateRequest {
	b := fileIDBody()
	b.Get("name").(*field.FixedString).V = name
	return &FileCreateRequest{body: b}
}
func (m *FileCreateRequest) MsgType() int        { return MsgFileCreate }
func (m *FileCreateRequest) Body() *field.Struct { return m.body }

func fileReadBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "file_id", Field: &field.Uint32{}},
		{Name: "offset", Field: &field.Uint32{}},
	}}
}

// FileReadRequest asks for one 512-byte chunk of a file at offset (§4.D).
type FileReadRequest struct{ body *field.Struct }

func NewFileReadRequest(fileID, offset uint32) *FileReadRequest {
	b := fileReadBody()
	b.Get("file_id").(*field.Uint32).V = fileID
	b.Get("offset").(*field.Uint32).V = offset
	return &FileReadRequest{body: b}
}
func (m *FileReadRequest) MsgType() int        { return MsgFileRead }
func (m *FileReadRequest) Body() *field.Struct { return m.body }

func fileWriteBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "file_id", Field: &field.Uint32{}},
		{Name: "offset", Field: &field.Uint32{}},
		{Name: "data", Field: &field.Binary{N: -1}},
	}}
}

// FileWriteRequest writes one chunk of up to 512 bytes at offset (§4.D).
type FileWriteRequest struct{ body *field.Struct }

func NewFileWriteRequest(fileID, offset uint32, data []byte) *FileWriteRequest {
	b := fileWriteBody()
	b.Get("file_id").(*field.Uint32).V = fileID
	b.Get("offset").(*field.Uint32).V = offset
	b.Get("data").(*field.Binary).V = data
	return &FileWriteRequest{body: b}
}
func (m *FileWriteRequest) MsgType() int        { return MsgFileWrite }
func (m *FileWriteRequest) Body() *field.Struct { return m.body }

type FileRemoveRequest struct{ body *field.Struct }

func NewFileRemoveRequest(name string) *FileRemoveRequest {
	b := fileIDBody()
	b.Get("name").(*field.FixedString).V = name
	return &FileRemoveRequest{body: b}
}
func (m *FileRemoveRequest) MsgType() int        { return MsgFileRemove }
func (m *FileRemoveRequest) Body() *field.Struct { return m.body }

type ResetConfigRequest struct{ body *field.Struct }

func NewResetConfigRequest() *ResetConfigRequest { return &ResetConfigRequest{body: &field.Struct{}} }
func (m *ResetConfigRequest) MsgType() int        { return MsgResetConfig }
func (m *ResetConfigRequest) Body() *field.Struct { return m.body }

// RequestRouteRequest asks the device to dump its known routes (feeds
// get_route_info, §4.D).
type RequestRouteRequest struct{ body *field.Struct }

func NewRequestRouteRequest() *RequestRouteRequest { return &RequestRouteRequest{body: &field.Struct{}} }
func (m *RequestRouteRequest) MsgType() int        { return MsgRequestRoute }
func (m *RequestRouteRequest) Body() *field.Struct { return m.body }

type ResetTimeSyncRequest struct{ body *field.Struct }

func NewResetTimeSyncRequest() *ResetTimeSyncRequest {
	return &ResetTimeSyncRequest{body: &field.Struct{}}
}
func (m *ResetTimeSyncRequest) MsgType() int        { return MsgResetTimeSync }
func (m *ResetTimeSyncRequest) Body() *field.Struct { return m.body }

// SetKVRequest and GetKVRequest carry a raw, pre-encoded batch body: a
// sequence of {group, id, [value]} entries built by the batching logic in
// internal/device rather than a fixed field.Struct, since a batch's shape
// depends on how many requests were packed into it (§4.D).
type SetKVRequest struct{ body *field.Binary }

func NewSetKVRequest(raw []byte) *SetKVRequest {
	return &SetKVRequest{body: &field.Binary{N: -1, V: raw}}
}
func (m *SetKVRequest) MsgType() int        { return MsgSetKV }
func (m *SetKVRequest) Body() *field.Struct { return &field.Struct{Fields: []field.Named{{Name: "batch", Field: m.body}}} }
func (m *SetKVRequest) Raw() []byte         { return m.body.V }

type GetKVRequest struct{ body *field.Binary }

func NewGetKVRequest(raw []byte) *GetKVRequest {
	return &GetKVRequest{body: &field.Binary{N: -1, V: raw}}
}
func (m *GetKVRequest) MsgType() int        { return MsgGetKV }
func (m *GetKVRequest) Body() *field.Struct { return &field.Struct{Fields: []field.Named{{Name: "batch", Field: m.body}}} }
func (m *GetKVRequest) Raw() []byte         { return m.body.V }

func setKVServerBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "address", Field: &field.IPv4{}},
		{Name: "port", Field: &field.Uint16{}},
	}}
}

// SetKVServerRequest installs the notification server address a device
// should push unsolicited notifications to (§4.G step 1).
type SetKVServerRequest struct{ body *field.Struct }

func NewSetKVServerRequest(addr net.IP, port uint16) *SetKVServerRequest {
	b := setKVServerBody()
	b.Get("address").(*field.IPv4).V = addr
	b.Get("port").(*field.Uint16).V = port
	return &SetKVServerRequest{body: b}
}
func (m *SetKVServerRequest) MsgType() int        { return MsgSetKVServer }
func (m *SetKVServerRequest) Body() *field.Struct { return m.body }

// SetSecurityKeyRequest installs the 128-bit key used to authenticate
// future device-command traffic (§4.B `set-security-key`).
type SetSecurityKeyRequest struct{ body *field.Struct }

func NewSetSecurityKeyRequest(key [16]byte) *SetSecurityKeyRequest {
	k := &field.Key128{V: key}
	return &SetSecurityKeyRequest{body: &field.Struct{Fields: []field.Named{{Name: "key", Field: k}}}}
}
func (m *SetSecurityKeyRequest) MsgType() int        { return MsgSetSecurityKey }
func (m *SetSecurityKeyRequest) Body() *field.Struct { return m.body }
