// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package field implements the wire codec shared by every device-facing
// protocol: a small tree of typed fields that know how to pack themselves
// into a contiguous little-endian byte buffer and unpack themselves back out
// of one. Every pkg/protocol payload is built from these fields; the RDG
// header, the serial frame and the device-id bytes hashed for security keys
// are packed by hand in their own packages.
package field

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Field is anything that can report its own packed size, serialize itself,
// and parse itself out of the front of a buffer, leaving the remainder for
// the next field in its containing Struct or Array.
type Field interface {
	// Size returns the number of bytes Pack will produce.
	Size() int
	// Pack serializes the field's current value.
	Pack() []byte
	// Unpack consumes len(Pack())-ish bytes from the front of buf, sets the
	// field's value, and returns the unconsumed tail. An error is returned
	// if buf is too short for the field's declared width.
	Unpack(buf []byte) ([]byte, error)
}

// Named pairs a Field with the name it is addressed by inside a Struct.
type Named struct {
	Name  string
	Field Field
}

func need(buf []byte, n int) error {
	if len(buf) < n {
		return fmt.Errorf("field: need %d bytes, have %d", n, len(buf))
	}
	return nil
}

// --- Scalar kinds ---------------------------------------------------------

// Bool is a 1-byte boolean scalar (0x00 = false, anything else = true).
type Bool struct{ V bool }

func (f *Bool) Size() int { return 1 }
func (f *Bool) Pack() []byte {
	if f.V {
		return []byte{1}
	}
	return []byte{0}
}
func (f *Bool) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 1); err != nil {
		return buf, err
	}
	f.V = buf[0] != 0
	return buf[1:], nil
}

// Int8 is a signed 8-bit scalar.
type Int8 struct{ V int8 }

func (f *Int8) Size() int    { return 1 }
func (f *Int8) Pack() []byte { return []byte{byte(f.V)} }
func (f *Int8) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 1); err != nil {
		return buf, err
	}
	f.V = int8(buf[0])
	return buf[1:], nil
}

// Uint8 is an unsigned 8-bit scalar.
type Uint8 struct{ V uint8 }

func (f *Uint8) Size() int    { return 1 }
func (f *Uint8) Pack() []byte { return []byte{f.V} }
func (f *Uint8) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 1); err != nil {
		return buf, err
	}
	f.V = buf[0]
	return buf[1:], nil
}

// Int16 is a signed little-endian 16-bit scalar.
type Int16 struct{ V int16 }

func (f *Int16) Size() int { return 2 }
func (f *Int16) Pack() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(f.V))
	return b
}
func (f *Int16) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 2); err != nil {
		return buf, err
	}
	f.V = int16(binary.LittleEndian.Uint16(buf))
	return buf[2:], nil
}

// Uint16 is an unsigned little-endian 16-bit scalar.
type Uint16 struct{ V uint16 }

func (f *Uint16) Size() int { return 2 }
func (f *Uint16) Pack() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, f.V)
	return b
}
func (f *Uint16) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 2); err != nil {
		return buf, err
	}
	f.V = binary.LittleEndian.Uint16(buf)
	return buf[2:], nil
}

// Int32 is a signed little-endian 32-bit scalar.
type Int32 struct{ V int32 }

func (f *Int32) Size() int { return 4 }
func (f *Int32) Pack() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(f.V))
	return b
}
func (f *Int32) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 4); err != nil {
		return buf, err
	}
	f.V = int32(binary.LittleEndian.Uint32(buf))
	return buf[4:], nil
}

// Uint32 is an unsigned little-endian 32-bit scalar.
type Uint32 struct{ V uint32 }

func (f *Uint32) Size() int { return 4 }
func (f *Uint32) Pack() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, f.V)
	return b
}
func (f *Uint32) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 4); err != nil {
		return buf, err
	}
	f.V = binary.LittleEndian.Uint32(buf)
	return buf[4:], nil
}

// Int64 is a signed little-endian 64-bit scalar.
type Int64 struct{ V int64 }

func (f *Int64) Size() int { return 8 }
func (f *Int64) Pack() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(f.V))
	return b
}
func (f *Int64) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 8); err != nil {
		return buf, err
	}
	f.V = int64(binary.LittleEndian.Uint64(buf))
	return buf[8:], nil
}

// Uint64 is an unsigned little-endian 64-bit scalar.
type Uint64 struct{ V uint64 }

func (f *Uint64) Size() int { return 8 }
func (f *Uint64) Pack() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, f.V)
	return b
}
func (f *Uint64) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 8); err != nil {
		return buf, err
	}
	f.V = binary.LittleEndian.Uint64(buf)
	return buf[8:], nil
}

// Float32 is an IEEE-754 little-endian 32-bit float scalar.
type Float32 struct{ V float32 }

func (f *Float32) Size() int { return 4 }
func (f *Float32) Pack() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f.V))
	return b
}
func (f *Float32) Unpack(buf []byte) ([]byte, error) {
	if err := need(buf, 4); err != nil {
		return buf, err
	}
	f.V = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	return buf[4:], nil
}
