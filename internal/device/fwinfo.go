// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// FirmwareInfo is the device's "fwinfo" file, fetched through the ordinary
// get_file path rather than a dedicated device-command (§4.D).
type FirmwareInfo struct {
	Length     uint32
	FirmwareID [16]byte
	OSName     string
	OSVersion  string
	AppName    string
	AppVersion string
}

func firmwareInfoBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "length", Field: &field.Uint32{}},
		{Name: "firmware_id", Field: &field.UUID128{}},
		{Name: "os_name", Field: field.String128()},
		{Name: "os_version", Field: &field.FixedString{N: 16}},
		{Name: "app_name", Field: field.String128()},
		{Name: "app_version", Field: &field.FixedString{N: 16}},
	}}
}

func decodeFirmwareInfo(raw []byte) (*FirmwareInfo, error) {
	b := firmwareInfoBody()
	if _, err := b.Unpack(raw); err != nil {
		return nil, fmt.Errorf("device: decode fwinfo: %w", err)
	}
	var id [16]byte
	copy(id[:], b.Get("firmware_id").(*field.UUID128).V[:])
	return &FirmwareInfo{
		Length:     b.Get("length").(*field.Uint32).V,
		FirmwareID: id,
		OSName:     b.Get("os_name").(*field.FixedString).V,
		OSVersion:  b.Get("os_version").(*field.FixedString).V,
		AppName:    b.Get("app_name").(*field.FixedString).V,
		AppVersion: b.Get("app_version").(*field.FixedString).V,
	}, nil
}

// kvMetaEntrySize is the wire width of one kvmeta array element: group, id,
// type, flags, and two reserved pointers the device firmware keeps for its
// own bookkeeping, followed by a 32-byte parameter name.
const kvMetaEntrySize = 1 + 1 + 1 + 2 + 2 + 2 + 32

func kvMetaEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "group", Field: &field.Uint8{}},
		{Name: "id", Field: &field.Uint8{}},
		{Name: "type", Field: &field.Int8{}},
		{Name: "flags", Field: &field.Uint16{}},
		{Name: "var_ptr", Field: &field.Uint16{}},
		{Name: "notifier_ptr", Field: &field.Uint16{}},
		{Name: "param_name", Field: &field.FixedString{N: 32}},
	}}
}

func decodeKVMeta(raw []byte) (map[string]protocol.KVMeta, error) {
	out := make(map[string]protocol.KVMeta)
	for len(raw) > 0 {
		b := kvMetaEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: decode kvmeta entry: %w", err)
		}
		name := b.Get("param_name").(*field.FixedString).V
		out[name] = protocol.KVMeta{
			Group: int(b.Get("group").(*field.Uint8).V),
			ID:    int(b.Get("id").(*field.Uint8).V),
			Type:  protocol.KVType(b.Get("type").(*field.Int8).V),
			Flags: uint8(b.Get("flags").(*field.Uint16).V),
		}
		raw = tail
	}
	return out, nil
}

// Scan refreshes firmware info, KV meta, and core attrs from the device,
// consulting metaStore so a fleet of identically-flashed devices downloads
// kvmeta only once per firmware image (§4.D).
func (s *Session) Scan() error {
	rawFWInfo, err := s.GetFile("fwinfo")
	if err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}
	fwInfo, err := decodeFirmwareInfo(rawFWInfo)
	if err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}

	sum := sha256.Sum256(rawFWInfo)
	fwHash := hex.EncodeToString(sum[:])

	rawMeta, ok, err := s.metaStore.Get(fwHash)
	if err != nil {
		return fmt.Errorf("device: scan: kvmeta cache lookup: %w", err)
	}
	if !ok {
		rawMeta, err = s.GetFile("kvmeta")
		if err != nil {
			return fmt.Errorf("device: scan: kvmeta: %w", err)
		}
		if err := s.metaStore.Put(fwHash, rawMeta); err != nil {
			return fmt.Errorf("device: scan: kvmeta cache store: %w", err)
		}
	}

	kvMeta, err := decodeKVMeta(rawMeta)
	if err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}
	for name, meta := range kvMeta {
		s.dev.SetKVMeta(name, meta)
	}

	if err := s.dev.Set(s.selfOrigin, "firmware_id", hex.EncodeToString(fwInfo.FirmwareID[:])); err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}
	if err := s.dev.Set(s.selfOrigin, "firmware_name", fwInfo.AppName); err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}
	if err := s.dev.Set(s.selfOrigin, "firmware_version", fwInfo.AppVersion); err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}
	if err := s.dev.Set(s.selfOrigin, "os_name", fwInfo.OSName); err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}
	if err := s.dev.Set(s.selfOrigin, "os_version", fwInfo.OSVersion); err != nil {
		return fmt.Errorf("device: scan: %w", err)
	}

	return s.dev.SetStatus(s.selfOrigin, exchange.StatusOnline)
}
