// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol implements the type-tagged payload registries used by
// every device-facing message exchange: gateway-services, device-command,
// and device-command-response. Each Protocol shares one msg_type scalar
// format; Payload implementations declare their msg_type and field layout,
// and Decode dispatches on it.
package protocol

import (
	"fmt"

	"github.com/sapphire-mesh/sapphire/pkg/field"
)

// MsgTypeFormat selects the wire width of a Protocol's message-type scalar.
type MsgTypeFormat int

const (
	MsgTypeU8 MsgTypeFormat = iota
	MsgTypeU16
)

// Payload is one message kind within a Protocol: a fixed msg_type plus an
// ordered field.Struct describing everything after it.
type Payload interface {
	MsgType() int
	Body() *field.Struct
}

// Factory builds a fresh, zero-valued Payload for Decode to unpack into.
type Factory func() Payload

// Protocol is a registry of Payload kinds sharing one msg_type_format.
type Protocol struct {
	Format   MsgTypeFormat
	Name     string
	registry map[int]Factory
}

// NewProtocol creates an empty registry. Register each Payload kind with
// Register before using Encode/Decode.
func NewProtocol(name string, format MsgTypeFormat) *Protocol {
	return &Protocol{Format: format, Name: name, registry: map[int]Factory{}}
}

// Register associates a msg_type with the factory that builds its Payload.
// Panics on a duplicate msg_type within the same protocol: that is a
// programming error in the registry definition, not a runtime condition.
func (p *Protocol) Register(msgType int, f Factory) {
	if _, exists := p.registry[msgType]; exists {
		panic(fmt.Sprintf("protocol %s: duplicate msg_type %d", p.Name, msgType))
	}
	p.registry[msgType] = f
}

func (p *Protocol) packMsgType(msgType int) []byte {
	switch p.Format {
	case MsgTypeU8:
		return (&field.Uint8{V: uint8(msgType)}).Pack()
	default:
		return (&field.Uint16{V: uint16(msgType)}).Pack()
	}
}

func (p *Protocol) peekMsgType(buf []byte) (int, []byte, error) {
	switch p.Format {
	case MsgTypeU8:
		f := &field.Uint8{}
		tail, err := f.Unpack(buf)
		return int(f.V), tail, err
	default:
		f := &field.Uint16{}
		tail, err := f.Unpack(buf)
		return int(f.V), tail, err
	}
}

// Encode serializes a Payload as {msg_type, ...fields}.
func (p *Protocol) Encode(msg Payload) []byte {
	out := p.packMsgType(msg.MsgType())
	return append(out, msg.Body().Pack()...)
}

// Decode peeks the msg_type, looks up the registered factory, and unpacks
// the remainder into a fresh Payload. An unrecognized msg_type is a hard
// error per §4.B.
func (p *Protocol) Decode(buf []byte) (Payload, error) {
	msgType, tail, err := p.peekMsgType(buf)
	if err != nil {
		return nil, fmt.Errorf("protocol %s: read msg_type: %w", p.Name, err)
	}

	factory, ok := p.registry[msgType]
	if !ok {
		return nil, fmt.Errorf("protocol %s: unknown msg_type %d", p.Name, msgType)
	}

	msg := factory()
	if _, err := msg.Body().Unpack(tail); err != nil {
		return nil, fmt.Errorf("protocol %s: msg_type %d: %w", p.Name, msgType, err)
	}
	return msg, nil
}
