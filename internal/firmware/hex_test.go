// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firmware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// hexRecord renders one Intel HEX data record with a correct checksum.
func hexRecord(addr uint16, recType byte, data []byte) string {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + recType
	for _, b := range data {
		sum += b
	}
	checksum := byte(-sum)

	var b strings.Builder
	b.WriteByte(':')
	b.WriteString(toHex(byte(len(data))))
	b.WriteString(toHex(byte(addr >> 8)))
	b.WriteString(toHex(byte(addr)))
	b.WriteString(toHex(recType))
	for _, d := range data {
		b.WriteString(toHex(d))
	}
	b.WriteString(toHex(checksum))
	return b.String()
}

func toHex(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}

func eofRecord() string {
	return hexRecord(0, recEOF, nil)
}

func TestParseIntelHexSingleDataRecord(t *testing.T) {
	src := strings.Join([]string{
		hexRecord(0x0000, recData, []byte{0x01, 0x02, 0x03}),
		eofRecord(),
	}, "\n")

	img, err := parseIntelHex(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, img.flatten())
}

func TestParseIntelHexExtendedLinearAddress(t *testing.T) {
	src := strings.Join([]string{
		hexRecord(0x0000, recExtendedLinearAddr, []byte{0x00, 0x01}),
		hexRecord(0x0000, recData, []byte{0xAA, 0xBB}),
		eofRecord(),
	}, "\n")

	img, err := parseIntelHex(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, uint32(0x00010000), img.minAddr)
	require.Equal(t, []byte{0xAA, 0xBB}, img.flatten())
}

func TestParseIntelHexExtendedSegmentAddress(t *testing.T) {
	src := strings.Join([]string{
		hexRecord(0x0000, recExtendedSegmentAddr, []byte{0x10, 0x00}),
		hexRecord(0x0000, recData, []byte{0xCC}),
		eofRecord(),
	}, "\n")

	img, err := parseIntelHex(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, uint32(0x10000), img.minAddr)
	require.Equal(t, []byte{0xCC}, img.flatten())
}

func TestParseIntelHexRejectsBadChecksum(t *testing.T) {
	src := ":03000000010203FF\n" + eofRecord()
	_, err := parseIntelHex(strings.NewReader(src))
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestParseIntelHexRejectsMissingStartCode(t *testing.T) {
	src := "0300000001020300\n" + eofRecord()
	_, err := parseIntelHex(strings.NewReader(src))
	require.ErrorContains(t, err, "missing start code")
}

func TestParseIntelHexRejectsUnsupportedRecordType(t *testing.T) {
	src := hexRecord(0x0000, 0x05, []byte{0x01}) + "\n" + eofRecord()
	_, err := parseIntelHex(strings.NewReader(src))
	require.ErrorContains(t, err, "unsupported record type")
}

func TestParseIntelHexRejectsMissingEOF(t *testing.T) {
	src := hexRecord(0x0000, recData, []byte{0x01})
	_, err := parseIntelHex(strings.NewReader(src))
	require.ErrorContains(t, err, "missing end-of-file record")
}

func TestParseIntelHexFlattenFillsGapsWithZero(t *testing.T) {
	src := strings.Join([]string{
		hexRecord(0x0000, recData, []byte{0x01}),
		hexRecord(0x0005, recData, []byte{0x02}),
		eofRecord(),
	}, "\n")

	img, err := parseIntelHex(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0, 0, 0, 0, 0x02}, img.flatten())
}
