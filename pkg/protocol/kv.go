// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"fmt"

	"github.com/sapphire-mesh/sapphire/pkg/field"
)

// KVType is the closed enum of wire types a device-exported KV parameter
// can have (§3). The numeric values are the wire encoding of data_type in
// notification payloads (§6) and set_kv/get_kv requests.
type KVType uint8

const (
	KVBool KVType = iota
	KVInt8
	KVInt16
	KVInt32
	KVInt64
	KVUint8
	KVUint16
	KVUint32
	KVUint64
	KVFloat32
	KVString128
	KVString512
	KVMAC48
	KVMAC64
	KVKey128
	KVIPv4
)

// NewField returns a zero-valued field.Field of the kind t, ready to be
// packed with a value or unpacked from a buffer.
func NewField(t KVType) (field.Field, error) {
	switch t {
	case KVBool:
		return &field.Bool{}, nil
	case KVInt8:
		return &field.Int8{}, nil
	case KVInt16:
		return &field.Int16{}, nil
	case KVInt32:
		return &field.Int32{}, nil
	case KVInt64:
		return &field.Int64{}, nil
	case KVUint8:
		return &field.Uint8{}, nil
	case KVUint16:
		return &field.Uint16{}, nil
	case KVUint32:
		return &field.Uint32{}, nil
	case KVUint64:
		return &field.Uint64{}, nil
	case KVFloat32:
		return &field.Float32{}, nil
	case KVString128:
		return field.String128(), nil
	case KVString512:
		return field.String512(), nil
	case KVMAC48:
		return field.NewMAC48(), nil
	case KVMAC64:
		return field.NewMAC64(), nil
	case KVKey128:
		return &field.Key128{}, nil
	case KVIPv4:
		return &field.IPv4{}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown kv type %d", t)
	}
}

// KVMeta is a device parameter's metadata entry: its on-wire address
// (group, id), its type, and its read-only/other flags (§3, §4.D).
type KVMeta struct {
	Group int
	ID    int
	Type  KVType
	Flags uint8
}

// ReadOnly reports whether bit 0 of Flags marks the parameter read-only.
func (m KVMeta) ReadOnly() bool { return m.Flags&0x01 != 0 }

// GroupNameID is the reserved id meaning "whole group" used by
// notifications addressed to a group rather than a single parameter (§4.E).
const GroupNameID = 255
