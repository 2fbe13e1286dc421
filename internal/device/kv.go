// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// fieldValue reads a decoded field.Field back out as a plain Go value.
func fieldValue(f field.Field) interface{} {
	switch v := f.(type) {
	case *field.Bool:
		return v.V
	case *field.Int8:
		return v.V
	case *field.Int16:
		return v.V
	case *field.Int32:
		return v.V
	case *field.Int64:
		return v.V
	case *field.Uint8:
		return v.V
	case *field.Uint16:
		return v.V
	case *field.Uint32:
		return v.V
	case *field.Uint64:
		return v.V
	case *field.Float32:
		return v.V
	case *field.FixedString:
		return v.V
	case *field.IPv4:
		return v.String()
	case *field.MAC48:
		return v.String()
	case *field.MAC64:
		return v.String()
	case *field.Key128:
		return v.String()
	default:
		return fmt.Sprintf("%v", f)
	}
}

// assignValue packs value into a zero-valued field of kind t.
func assignValue(t protocol.KVType, value interface{}) (field.Field, error) {
	f, err := protocol.NewField(t)
	if err != nil {
		return nil, err
	}
	switch v := f.(type) {
	case *field.Bool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("device: set_kv: expected bool, got %T", value)
		}
		v.V = b
	case *field.Int8:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = int8(n)
	case *field.Int16:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = int16(n)
	case *field.Int32:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = int32(n)
	case *field.Int64:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = n
	case *field.Uint8:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = uint8(n)
	case *field.Uint16:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = uint16(n)
	case *field.Uint32:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = uint32(n)
	case *field.Uint64:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		v.V = uint64(n)
	case *field.Float32:
		switch n := value.(type) {
		case float32:
			v.V = n
		case float64:
			v.V = float32(n)
		default:
			return nil, fmt.Errorf("device: set_kv: expected float, got %T", value)
		}
	case *field.FixedString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("device: set_kv: expected string, got %T", value)
		}
		v.V = s
	default:
		return nil, fmt.Errorf("device: set_kv: unsupported target type %T", f)
	}
	return f, nil
}

func asInt64(value interface{}) (int64, error) {
	switch n := value.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("device: set_kv: expected numeric value, got %T", value)
	}
}

// GetKV reads the current value of each named parameter (§4.D). Names are
// resolved against the device's KV-meta table (populated by Scan) and
// batched per the 548-byte wire limit.
func (s *Session) GetKV(names ...string) (map[string]interface{}, error) {
	addrs := make([]kvAddr, 0, len(names))
	metaByAddr := make(map[kvAddr]protocol.KVMeta, len(names))
	nameByAddr := make(map[kvAddr]string, len(names))

	for _, name := range names {
		meta, ok := s.dev.KVMeta(name)
		if !ok {
			return nil, fmt.Errorf("device: get_kv %q: %w", name, exchange.ErrUnknownKey)
		}
		a := kvAddr{Group: uint8(meta.Group), ID: uint8(meta.ID)}
		addrs = append(addrs, a)
		metaByAddr[a] = meta
		nameByAddr[a] = name
	}

	batches, err := batchAddrs(addrs, func(a kvAddr) (int, error) {
		return responseEntrySize(metaByAddr[a].Type)
	})
	if err != nil {
		return nil, fmt.Errorf("device: get_kv: %w", err)
	}

	out := make(map[string]interface{}, len(names))
	for _, batch := range batches {
		resp, err := s.roundTrip(protocol.NewGetKVRequest(packGetKVRequest(batch)))
		if err != nil {
			return nil, fmt.Errorf("device: get_kv: %w", err)
		}
		getResp, ok := resp.(*protocol.GetKVResponse)
		if !ok {
			return nil, fmt.Errorf("device: get_kv: unexpected response type %T", resp)
		}
		values, err := unpackGetKVResponse(getResp.Raw())
		if err != nil {
			return nil, fmt.Errorf("device: get_kv: %w", err)
		}
		for _, v := range values {
			name, ok := nameByAddr[v.Addr]
			if !ok {
				continue
			}
			out[name] = fieldValue(v.Field)
		}
	}
	return out, nil
}

// SetKV writes the given parameter values (§4.D), rejecting unknown or
// read-only keys locally before ever touching the wire, and surfacing
// per-entry device-side rejections (read-only, unknown) after the round
// trip.
func (s *Session) SetKV(kv map[string]interface{}) error {
	entries := make([]kvValue, 0, len(kv))
	metaByAddr := make(map[kvAddr]protocol.KVMeta, len(kv))
	nameByAddr := make(map[kvAddr]string, len(kv))

	for name, value := range kv {
		meta, ok := s.dev.KVMeta(name)
		if !ok {
			return fmt.Errorf("device: set_kv %q: %w", name, exchange.ErrUnknownKey)
		}
		if meta.ReadOnly() {
			return fmt.Errorf("device: set_kv %q: %w", name, exchange.ErrReadOnlyKey)
		}
		f, err := assignValue(meta.Type, value)
		if err != nil {
			return err
		}
		a := kvAddr{Group: uint8(meta.Group), ID: uint8(meta.ID)}
		entries = append(entries, kvValue{Addr: a, Field: f})
		metaByAddr[a] = meta
		nameByAddr[a] = name
	}

	typeOf := func(a kvAddr) protocol.KVType { return metaByAddr[a].Type }
	addrs := make([]kvAddr, len(entries))
	for i, e := range entries {
		addrs[i] = e.Addr
	}
	entrySize := func(a kvAddr) (int, error) {
		f, err := protocol.NewField(metaByAddr[a].Type)
		if err != nil {
			return 0, err
		}
		return 3 + f.Size(), nil
	}
	batches, err := batchAddrs(addrs, entrySize)
	if err != nil {
		return fmt.Errorf("device: set_kv: %w", err)
	}

	byAddr := make(map[kvAddr]kvValue, len(entries))
	for _, e := range entries {
		byAddr[e.Addr] = e
	}

	for _, batchAddrsN := range batches {
		batch := make([]kvValue, len(batchAddrsN))
		for i, a := range batchAddrsN {
			batch[i] = byAddr[a]
		}
		resp, err := s.roundTrip(protocol.NewSetKVRequest(packSetKVRequest(batch, typeOf)))
		if err != nil {
			return fmt.Errorf("device: set_kv: %w", err)
		}
		setResp, ok := resp.(*protocol.SetKVResponse)
		if !ok {
			return fmt.Errorf("device: set_kv: unexpected response type %T", resp)
		}
		results, err := unpackSetKVResponse(setResp.Raw())
		if err != nil {
			return fmt.Errorf("device: set_kv: %w", err)
		}
		for _, r := range results {
			name := nameByAddr[r.Addr]
			switch r.Status {
			case setKVOK:
				continue
			case setKVReadOnly:
				return fmt.Errorf("device: set_kv %q: %w", name, exchange.ErrReadOnlyKey)
			case setKVUnknown:
				return fmt.Errorf("device: set_kv %q: %w", name, exchange.ErrUnknownKey)
			}
		}
	}
	return nil
}
