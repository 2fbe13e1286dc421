// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package field

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// FixedString is an N-byte NUL-padded fixed-width string field. Decoding
// strips everything from the first NUL onward and drops non-printable
// bytes, matching how devices pad short strings with zero bytes.
type FixedString struct {
	N int
	V string
}

func (f *FixedString) Size() int { return f.N }

func (f *FixedString) Pack() []byte {
	b := make([]byte, f.N)
	copy(b, f.V)
	return b
}

func (f *FixedString) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, f.N); err != nil {
		return buf, err
	}
	raw := buf[:f.N]
	var sb strings.Builder
	for _, c := range raw {
		if c == 0 {
			break
		}
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		}
	}
	f.V = sb.String()
	return buf[f.N:], nil
}

// String128 is the 128-byte fixed string KV parameter type.
func String128() *FixedString { return &FixedString{N: 128} }

// String512 is the 512-byte fixed string KV parameter type.
func String512() *FixedString { return &FixedString{N: 512} }

// Binary is a raw byte slice whose length is decided by the enclosing
// container (a preceding length field in a Struct, or "rest of buffer" when
// used as the trailing field in an Array/Struct).
type Binary struct {
	N int // -1 means "consume the rest of the buffer"
	V []byte
}

func (f *Binary) Size() int {
	if f.N < 0 {
		return len(f.V)
	}
	return f.N
}

func (f *Binary) Pack() []byte {
	if f.N < 0 {
		return append([]byte(nil), f.V...)
	}
	b := make([]byte, f.N)
	copy(b, f.V)
	return b
}

func (f *Binary) Unpack(buf []byte) ([]byte, error) {
	if f.N < 0 {
		f.V = append([]byte(nil), buf...)
		return nil, nil
	}
	if err := need(buf, f.N); err != nil {
		return buf, err
	}
	f.V = append([]byte(nil), buf[:f.N]...)
	return buf[f.N:], nil
}

// IPv4 is a 32-bit IPv4 address field, textual form "a.b.c.d".
type IPv4 struct{ V net.IP }

func (f *IPv4) Size() int { return 4 }

func (f *IPv4) Pack() []byte {
	ip := f.V.To4()
	if ip == nil {
		ip = net.IPv4zero.To4()
	}
	return append([]byte(nil), ip...)
}

func (f *IPv4) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 4); err != nil {
		return buf, err
	}
	f.V = net.IPv4(buf[0], buf[1], buf[2], buf[3])
	return buf[4:], nil
}

func (f *IPv4) String() string { return f.V.String() }

// mac is shared by MAC48 and MAC64: N raw bytes rendered colon-separated
// lowercase hex.
type mac struct {
	N int
	V []byte
}

func (f *mac) Size() int { return f.N }

func (f *mac) Pack() []byte {
	b := make([]byte, f.N)
	copy(b, f.V)
	return b
}

func (f *mac) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, f.N); err != nil {
		return buf, err
	}
	f.V = append([]byte(nil), buf[:f.N]...)
	return buf[f.N:], nil
}

func (f *mac) String() string {
	parts := make([]string, len(f.V))
	for i, b := range f.V {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// MAC48 is a 6-byte hardware address field.
type MAC48 struct{ mac }

func NewMAC48() *MAC48 { return &MAC48{mac{N: 6}} }

// MAC64 is an 8-byte extended hardware address field.
type MAC64 struct{ mac }

func NewMAC64() *MAC64 { return &MAC64{mac{N: 8}} }

// Key128 is a 16-byte opaque key, rendered as 32-char hex.
type Key128 struct{ V [16]byte }

func (f *Key128) Size() int     { return 16 }
func (f *Key128) Pack() []byte  { return append([]byte(nil), f.V[:]...) }
func (f *Key128) String() string { return fmt.Sprintf("%x", f.V[:]) }

func (f *Key128) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 16); err != nil {
		return buf, err
	}
	copy(f.V[:], buf[:16])
	return buf[16:], nil
}

// Set assigns raw key bytes, validating the length as §4.A requires.
func (f *Key128) Set(raw []byte) error {
	if len(raw) != 16 {
		return fmt.Errorf("field: key128 requires exactly 16 bytes, got %d", len(raw))
	}
	copy(f.V[:], raw)
	return nil
}

// UUID128 is a 16-byte field rendered as a canonical UUID string.
type UUID128 struct{ V uuid.UUID }

func (f *UUID128) Size() int    { return 16 }
func (f *UUID128) Pack() []byte { return append([]byte(nil), f.V[:]...) }

func (f *UUID128) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 16); err != nil {
		return buf, err
	}
	copy(f.V[:], buf[:16])
	return buf[16:], nil
}

func (f *UUID128) String() string { return f.V.String() }
