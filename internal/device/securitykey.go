// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DeriveSecurityKey derives the 128-bit device-command security key for
// deviceID from a per-deployment seed, so that every device gets a distinct
// key without a key database to keep in sync (§4.B set-security-key). The
// seed is deployment secret material (loaded from .env, never the JSON
// config) and must stay constant across restarts for a given device to keep
// accepting commands.
func DeriveSecurityKey(seed []byte, deviceID uint64) ([16]byte, error) {
	var out [16]byte
	h, err := blake2b.New(16, seed)
	if err != nil {
		return out, fmt.Errorf("device: derive security key: %w", err)
	}
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], deviceID)
	h.Write(idBytes[:])
	copy(out[:], h.Sum(nil))
	return out, nil
}
