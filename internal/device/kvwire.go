// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package device implements the per-device command session (§4.D): the
// synchronous echo/scan/kv/file/lifecycle operations every higher-level
// component (monitor, notification server, automaton) drives a device
// through.
package device

import (
	"fmt"

	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// kvAddr is a device parameter's wire address.
type kvAddr struct {
	Group uint8
	ID    uint8
}

// MaxKVBatchBytes bounds the on-wire size of one get_kv/set_kv round-trip
// (§4.D, §8: "KV batching never emits a batch whose on-wire size exceeds
// 548 bytes").
const MaxKVBatchBytes = 548

// responseEntrySize is the wire size of one get_kv response entry: group,
// id, data_type, then the value itself.
func responseEntrySize(t protocol.KVType) (int, error) {
	f, err := protocol.NewField(t)
	if err != nil {
		return 0, err
	}
	return 3 + f.Size(), nil
}

// batchAddrs splits addrs into batches whose cumulative entry size (per
// sizeOf) never exceeds MaxKVBatchBytes.
func batchAddrs(addrs []kvAddr, sizeOf func(kvAddr) (int, error)) ([][]kvAddr, error) {
	var batches [][]kvAddr
	var current []kvAddr
	currentSize := 0

	for _, a := range addrs {
		n, err := sizeOf(a)
		if err != nil {
			return nil, err
		}
		if currentSize+n > MaxKVBatchBytes && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentSize = 0
		}
		current = append(current, a)
		currentSize += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

func packGetKVRequest(addrs []kvAddr) []byte {
	var buf []byte
	for _, a := range addrs {
		buf = append(buf, a.Group, a.ID)
	}
	return buf
}

type kvValue struct {
	Addr  kvAddr
	Field field.Field
}

// unpackGetKVResponse decodes a response batch: a sequence of {group, id,
// data_type, value} entries, the value's width determined by its
// data_type field (§4.A: every field knows its own size).
func unpackGetKVResponse(buf []byte) ([]kvValue, error) {
	var out []kvValue
	for len(buf) > 0 {
		group := &field.Uint8{}
		var err error
		if buf, err = group.Unpack(buf); err != nil {
			return nil, err
		}
		id := &field.Uint8{}
		if buf, err = id.Unpack(buf); err != nil {
			return nil, err
		}
		dtype := &field.Uint8{}
		if buf, err = dtype.Unpack(buf); err != nil {
			return nil, err
		}

		vf, err := protocol.NewField(protocol.KVType(dtype.V))
		if err != nil {
			return nil, fmt.Errorf("device: get_kv response: %w", err)
		}
		if buf, err = vf.Unpack(buf); err != nil {
			return nil, err
		}

		out = append(out, kvValue{Addr: kvAddr{Group: group.V, ID: id.V}, Field: vf})
	}
	return out, nil
}

// packSetKVRequest encodes a batch of {group, id, data_type, value}
// entries to write.
func packSetKVRequest(entries []kvValue, typeOf func(kvAddr) protocol.KVType) []byte {
	var buf []byte
	for _, e := range entries {
		buf = append(buf, e.Addr.Group, e.Addr.ID, byte(typeOf(e.Addr)))
		buf = append(buf, e.Field.Pack()...)
	}
	return buf
}

// setKVStatus is the per-entry result code in a set_kv response.
type setKVStatus uint8

const (
	setKVOK setKVStatus = iota
	setKVReadOnly
	setKVUnknown
)

type setKVResult struct {
	Addr   kvAddr
	Status setKVStatus
}

// unpackSetKVResponse decodes a fixed-width {group, id, status} ack per
// entry.
func unpackSetKVResponse(buf []byte) ([]setKVResult, error) {
	var out []setKVResult
	for len(buf) >= 3 {
		out = append(out, setKVResult{
			Addr:   kvAddr{Group: buf[0], ID: buf[1]},
			Status: setKVStatus(buf[2]),
		})
		buf = buf[3:]
	}
	return out, nil
}
