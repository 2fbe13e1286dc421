// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import "github.com/sapphire-mesh/sapphire/pkg/field"

// DeviceCommandResponse mirrors DeviceCommand one-for-one: every request
// msg_type has a matching response msg_type carrying the same numeric id
// (§4.B "symmetrical... protocol"), decoded on the same RDG connection.
var DeviceCommandResponse = buildDeviceCommandResponse()

func buildDeviceCommandResponse() *Protocol {
	p := NewProtocol("device-command-response", MsgTypeU16)

	p.Register(MsgEcho, func() Payload { return NewEchoResponse("") })
	p.Register(MsgReboot, func() Payload { return &EmptyResponse{msgType: MsgReboot, body: &field.Struct{}} })
	p.Register(MsgSafeMode, func() Payload { return &EmptyResponse{msgType: MsgSafeMode, body: &field.Struct{}} })
	p.Register(MsgLoadFirmware, func() Payload { return &EmptyResponse{msgType: MsgLoadFirmware, body: &field.Struct{}} })
	p.Register(MsgFormatFS, func() Payload { return &EmptyResponse{msgType: MsgFormatFS, body: &field.Struct{}} })
	p.Register(MsgFileGetID, func() Payload { return &FileGetIDResponse{body: fileGetIDRespBody()} })
	p.Register(MsgFileCreate, func() Payload { return &FileGetIDResponse{msgType: MsgFileCreate, body: fileGetIDRespBody()} })
	p.Register(MsgFileRead, func() Payload { return &FileReadResponse{body: &field.Struct{Fields: []field.Named{{Name: "data", Field: &field.Binary{N: -1}}}}} })
	p.Register(MsgFileWrite, func() Payload { return &FileWriteResponse{body: fileWriteRespBody()} })
	p.Register(MsgFileRemove, func() Payload { return &EmptyResponse{msgType: MsgFileRemove, body: &field.Struct{}} })
	p.Register(MsgResetConfig, func() Payload { return &EmptyResponse{msgType: MsgResetConfig, body: &field.Struct{}} })
	p.Register(MsgRequestRoute, func() Payload { return &RequestRouteResponse{body: &field.Struct{Fields: []field.Named{{Name: "routes", Field: &field.Array{New: func() field.Field { return routeEntry() }, N: -1}}}}} })
	p.Register(MsgResetTimeSync, func() Payload { return &EmptyResponse{msgType: MsgResetTimeSync, body: &field.Struct{}} })
	p.Register(MsgSetKV, func() Payload { return &SetKVResponse{body: &field.Struct{Fields: []field.Named{{Name: "batch", Field: &field.Binary{N: -1}}}}} })
	p.Register(MsgGetKV, func() Payload { return &GetKVResponse{body: &field.Struct{Fields: []field.Named{{Name: "batch", Field: &field.Binary{N: -1}}}}} })
	p.Register(MsgSetKVServer, func() Payload { return &EmptyResponse{msgType: MsgSetKVServer, body: &field.Struct{}} })
	p.Register(MsgSetSecurityKey, func() Payload { return &EmptyResponse{msgType: MsgSetSecurityKey, body: &field.Struct{}} })

	return p
}

// EmptyResponse acknowledges a request that carries no reply data of its
// own (reboot, safe-mode, load-firmware, format-fs, reset-config,
// reset-time-sync, set-kv-server, set-security-key).
type EmptyResponse struct {
	msgType int
	body    *field.Struct
}

func NewEmptyResponse(msgType int) *EmptyResponse {
	return &EmptyResponse{msgType: msgType, body: &field.Struct{}}
}
func (m *EmptyResponse) MsgType() int        { return m.msgType }
func (m *EmptyResponse) Body() *field.Struct { return m.body }

// EchoResponse carries the same bytes the request's EchoRequest sent.
type EchoResponse struct{ body *field.Struct }

func NewEchoResponse(s string) *EchoResponse {
	return &EchoResponse{body: &field.Struct{Fields: []field.Named{
		{Name: "payload", Field: &field.FixedString{N: 128, V: s}},
	}}}
}
func (m *EchoResponse) MsgType() int        { return MsgEcho }
func (m *EchoResponse) Body() *field.Struct { return m.body }
func (m *EchoResponse) Payload() string     { return m.body.Get("payload").(*field.FixedString).V }

func fileGetIDRespBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{{Name: "file_id", Field: &field.Uint32{}}}}
}

// FileGetIDResponse answers file-get-id and file-create requests with the
// device-internal file id to use for subsequent read/write calls.
type FileGetIDResponse struct {
	msgType int
	body    *field.Struct
}

func NewFileGetIDResponse(fileID uint32) *FileGetIDResponse {
	b := fileGetIDRespBody()
	b.Get("file_id").(*field.Uint32).V = fileID
	return &FileGetIDResponse{msgType: MsgFileGetID, body: b}
}
func (m *FileGetIDResponse) MsgType() int {
	if m.msgType == 0 {
		return MsgFileGetID
	}
	return m.msgType
}
func (m *FileGetIDResponse) Body() *field.Struct { return m.body }
func (m *FileGetIDResponse) FileID() uint32      { return m.body.Get("file_id").(*field.Uint32).V }

// FileReadResponse carries one chunk of file data; a chunk shorter than 512
// bytes signals end-of-file (§4.D, §8).
type FileReadResponse struct{ body *field.Struct }

func NewFileReadResponse(data []byte) *FileReadResponse {
	return &FileReadResponse{body: &field.Struct{Fields: []field.Named{
		{Name: "data", Field: &field.Binary{N: -1, V: data}},
	}}}
}
func (m *FileReadResponse) MsgType() int        { return MsgFileRead }
func (m *FileReadResponse) Body() *field.Struct { return m.body }
func (m *FileReadResponse) Data() []byte        { return m.body.Get("data").(*field.Binary).V }

func fileWriteRespBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{{Name: "written", Field: &field.Uint32{}}}}
}

// FileWriteResponse reports how many bytes of the request chunk were
// actually written; fewer than requested is a short write (§4.D, §8).
type FileWriteResponse struct{ body *field.Struct }

func NewFileWriteResponse(written uint32) *FileWriteResponse {
	b := fileWriteRespBody()
	b.Get("written").(*field.Uint32).V = written
	return &FileWriteResponse{body: b}
}
func (m *FileWriteResponse) MsgType() int        { return MsgFileWrite }
func (m *FileWriteResponse) Body() *field.Struct { return m.body }
func (m *FileWriteResponse) Written() uint32     { return m.body.Get("written").(*field.Uint32).V }

func routeEntry() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "destination", Field: &field.IPv4{}},
		{Name: "next_hop", Field: &field.IPv4{}},
		{Name: "metric", Field: &field.Uint16{}},
	}}
}

// RequestRouteResponse carries a device's routing table as a variable-length
// array of route entries, decoded to exhaustion (§4.A Array, §4.D
// get_route_info).
type RequestRouteResponse struct{ body *field.Struct }

func (m *RequestRouteResponse) MsgType() int        { return MsgRequestRoute }
func (m *RequestRouteResponse) Body() *field.Struct { return m.body }
func (m *RequestRouteResponse) Routes() *field.Array {
	return m.body.Get("routes").(*field.Array)
}

// SetKVResponse/GetKVResponse carry a raw batched reply body; internal/device
// de-batches it by matching (group, id) back to parameter names (§4.D).
type SetKVResponse struct{ body *field.Struct }

func NewSetKVResponse(raw []byte) *SetKVResponse {
	return &SetKVResponse{body: &field.Struct{Fields: []field.Named{{Name: "batch", Field: &field.Binary{N: -1, V: raw}}}}}
}
func (m *SetKVResponse) MsgType() int        { return MsgSetKV }
func (m *SetKVResponse) Body() *field.Struct { return m.body }
func (m *SetKVResponse) Raw() []byte         { return m.body.Get("batch").(*field.Binary).V }

type GetKVResponse struct{ body *field.Struct }

func NewGetKVResponse(raw []byte) *GetKVResponse {
	return &GetKVResponse{body: &field.Struct{Fields: []field.Named{{Name: "batch", Field: &field.Binary{N: -1, V: raw}}}}}
}
func (m *GetKVResponse) MsgType() int        { return MsgGetKV }
func (m *GetKVResponse) Body() *field.Struct { return m.body }
func (m *GetKVResponse) Raw() []byte         { return m.body.Get("batch").(*field.Binary).V }
