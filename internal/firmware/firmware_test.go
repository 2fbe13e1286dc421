// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firmware

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/require"
)

// writeString writes a null-padded, length-limited string into buf at off.
func writeString(buf []byte, off int, size int, s string) {
	copy(buf[off:off+size], s)
}

// buildImageHex renders buf as an Intel HEX file, chunked into 16-byte
// data records starting at address 0.
func buildImageHex(buf []byte) string {
	var lines []string
	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}
		lines = append(lines, hexRecord(uint16(off), recData, buf[off:end]))
	}
	lines = append(lines, eofRecord())
	return strings.Join(lines, "\n")
}

// buildValidImage assembles a firmware image with the info struct at
// infoOffset and a correct trailing CRC-16/AUG-CCITT, as the build
// subsystem's post_process step does (§6).
func buildValidImage(fwid [16]byte, osName, osVersion, appName, appVersion string) []byte {
	total := infoOffset + infoSize + 2
	buf := make([]byte, total)

	appSize := uint32(infoOffset + infoSize)
	buf[infoOffset+0] = byte(appSize)
	buf[infoOffset+1] = byte(appSize >> 8)
	buf[infoOffset+2] = byte(appSize >> 16)
	buf[infoOffset+3] = byte(appSize >> 24)
	copy(buf[infoOffset+4:infoOffset+20], fwid[:])
	writeString(buf, infoOffset+20, 128, osName)
	writeString(buf, infoOffset+148, 16, osVersion)
	writeString(buf, infoOffset+164, 128, appName)
	writeString(buf, infoOffset+292, 16, appVersion)

	table := crc16.MakeTable(crc16.CRC16_AUG_CCITT)
	crc := crc16.Checksum(buf[:total-2], table)
	buf[total-2] = byte(crc >> 8)
	buf[total-1] = byte(crc)

	return buf
}

func TestInspectValidImage(t *testing.T) {
	fwid := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	buf := buildValidImage(fwid, "sapphire-os", "1.4.0", "thermostat-app", "2.1.0")

	path := filepath.Join(t.TempDir(), "image.hex")
	require.NoError(t, os.WriteFile(path, []byte(buildImageHex(buf)), 0o644))

	info, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, fwid, info.FirmwareID)
	require.Equal(t, "sapphire-os", info.OSName)
	require.Equal(t, "1.4.0", info.OSVersion)
	require.Equal(t, "thermostat-app", info.AppName)
	require.Equal(t, "2.1.0", info.AppVersion)
}

func TestInspectRejectsTamperedCRC(t *testing.T) {
	fwid := [16]byte{0xaa}
	buf := buildValidImage(fwid, "sapphire-os", "1.4.0", "thermostat-app", "2.1.0")
	buf[len(buf)-1] ^= 0xff

	path := filepath.Join(t.TempDir(), "image.hex")
	require.NoError(t, os.WriteFile(path, []byte(buildImageHex(buf)), 0o644))

	_, err := Inspect(path)
	require.ErrorContains(t, err, "CRC mismatch")
}

func TestInspectRejectsTruncatedImage(t *testing.T) {
	src := strings.Join([]string{
		hexRecord(0x0000, recData, []byte{0x01, 0x02}),
		eofRecord(),
	}, "\n")
	path := filepath.Join(t.TempDir(), "image.hex")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	_, err := Inspect(path)
	require.ErrorContains(t, err, "too small")
}

func TestLibraryLoadAndGet(t *testing.T) {
	fwid := [16]byte{0x42}
	buf := buildValidImage(fwid, "sapphire-os", "1.4.0", "thermostat-app", "2.1.0")

	dir := t.TempDir()
	hexPath := filepath.Join(dir, "image.hex")
	binPath := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(hexPath, []byte(buildImageHex(buf)), 0o644))
	require.NoError(t, os.WriteFile(binPath, buf, 0o644))

	lib := NewLibrary()
	info, err := lib.Load(hexPath, binPath)
	require.NoError(t, err)
	require.Equal(t, fwid, info.FirmwareID)

	got, ok, err := lib.Get(fwid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, buf, got)

	_, ok, err = lib.Get([16]byte{0xff})
	require.NoError(t, err)
	require.False(t, ok)
}
