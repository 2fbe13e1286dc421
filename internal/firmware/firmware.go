// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package firmware reads and validates the build subsystem's Intel HEX
// firmware images (§6 "Firmware image file layout") and serves them to
// device sessions by firmware id.
package firmware

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/sigurn/crc16"
)

// infoOffset is where the build subsystem embeds the firmware info
// struct in the image (§6).
const infoOffset = 0x120

// infoSize is the packed little-endian struct size: u32 size + 16-byte
// uuid + 128-byte os_name + 16-byte os_version + 128-byte app_name +
// 16-byte app_version (§6).
const infoSize = 4 + 16 + 128 + 16 + 128 + 16

// augCCITT is the CRC-16/AUG-CCITT catalogue entry the build subsystem
// uses to checksum the finished image (§6, grounded on the original
// build tool's crcmod.predefined.mkCrcFun('crc-aug-ccitt')).
var augCCITT = crc16.CRC16_AUG_CCITT

// Info is the decoded firmware info struct embedded at infoOffset.
type Info struct {
	Size       uint32
	FirmwareID [16]byte
	OSName     string
	OSVersion  string
	AppName    string
	AppVersion string
	CRC        uint16
}

// Inspect parses the Intel HEX file at path, extracts its firmware info
// struct, and verifies the trailing CRC-16/AUG-CCITT over the whole image
// (§6). Library.Load calls this for every image it loads.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("firmware: open %s: %w", path, err)
	}
	defer f.Close()

	img, err := parseIntelHex(f)
	if err != nil {
		return nil, fmt.Errorf("firmware: parse %s: %w", path, err)
	}

	flat := img.flatten()
	relOffset := int(infoOffset) - int(img.minAddr)
	if relOffset < 0 || relOffset+infoSize > len(flat) {
		return nil, fmt.Errorf("firmware: %s: image too small to hold firmware info struct", path)
	}
	raw := flat[relOffset : relOffset+infoSize]

	info := &Info{
		Size: uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24,
	}
	copy(info.FirmwareID[:], raw[4:20])
	info.OSName = trimNulls(raw[20:148])
	info.OSVersion = trimNulls(raw[148:164])
	info.AppName = trimNulls(raw[164:292])
	info.AppVersion = trimNulls(raw[292:308])

	// The build subsystem appends the CRC big-endian as the last two
	// bytes of the image, at ih.maxaddr()+1 (§6), and the CRC itself
	// covers everything before it.
	if len(flat) < 2 {
		return nil, fmt.Errorf("firmware: %s: image too small to hold trailing CRC", path)
	}
	storedCRC := uint16(flat[len(flat)-2])<<8 | uint16(flat[len(flat)-1])
	body := flat[:len(flat)-2]

	table := crc16.MakeTable(augCCITT)
	computed := crc16.Checksum(body, table)
	if computed != storedCRC {
		return nil, fmt.Errorf("firmware: %s: CRC mismatch: image says 0x%04x, computed 0x%04x", path, storedCRC, computed)
	}
	info.CRC = computed

	return info, nil
}

func trimNulls(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Library is an in-memory device.FirmwareStore keyed by firmware id,
// populated by Load as images are discovered on disk.
type Library struct {
	mu     sync.RWMutex
	images map[[16]byte][]byte
}

// NewLibrary creates an empty firmware library.
func NewLibrary() *Library {
	return &Library{images: make(map[[16]byte][]byte)}
}

// Load inspects and registers the firmware.bin image alongside the given
// hex path's firmware info, so later LoadFirmware calls can find it by id.
func (l *Library) Load(hexPath, binPath string) (*Info, error) {
	info, err := Inspect(hexPath)
	if err != nil {
		return nil, err
	}

	image, err := os.ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("firmware: read %s: %w", binPath, err)
	}

	l.mu.Lock()
	l.images[info.FirmwareID] = image
	l.mu.Unlock()
	return info, nil
}

// Get satisfies internal/device.FirmwareStore.
func (l *Library) Get(id [16]byte) ([]byte, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	image, ok := l.images[id]
	return image, ok, nil
}
