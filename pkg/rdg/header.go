// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rdg implements UDPX: the 2-byte-header ARQ reliability shim on
// top of UDP used by every device-facing protocol (§4.C). It provides an
// acknowledged, idempotent request/reply client and the matching server
// role, plus a module-wide pool capping concurrent client sockets.
package rdg

import "fmt"

// HeaderSize is the fixed 2-byte UDPX header: one flags byte followed by
// the 8-bit id.
const HeaderSize = 2

// Header is the parsed form of a UDPX datagram's first two bytes (§4.C):
// version (2 bits, must be 0), server flag, ack-request flag, ack flag,
// 3 reserved bits, then an 8-bit id.
type Header struct {
	Version int
	Server  bool
	AckReq  bool
	Ack     bool
	ID      uint8
}

// Pack serializes h into its 2-byte wire form.
func (h Header) Pack() []byte {
	b0 := byte(h.Version&0x3) << 6
	if h.Server {
		b0 |= 1 << 5
	}
	if h.AckReq {
		b0 |= 1 << 4
	}
	if h.Ack {
		b0 |= 1 << 3
	}
	return []byte{b0, h.ID}
}

// ParseHeader reads a Header from the first 2 bytes of buf, returning the
// remaining payload bytes.
func ParseHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, fmt.Errorf("rdg: datagram too short for header: %d bytes", len(buf))
	}
	b0 := buf[0]
	h := Header{
		Version: int(b0>>6) & 0x3,
		Server:  b0&(1<<5) != 0,
		AckReq:  b0&(1<<4) != 0,
		Ack:     b0&(1<<3) != 0,
		ID:      buf[1],
	}
	return h, buf[HeaderSize:], nil
}

// IsClientRequest reports whether h is a well-formed request from a client
// to a server: version 0, server=0, ack=0 (ack_req may be either, though
// the client always sets it).
func (h Header) IsClientRequest() bool {
	return h.Version == 0 && !h.Server && !h.Ack
}

// IsServerReply reports whether h is a well-formed reply matching
// requestID, per the client acceptance rule in §4.C / §8 invariant 5.
func (h Header) IsServerReply(requestID uint8) bool {
	return h.Version == 0 && h.Server && h.Ack && !h.AckReq && h.ID == requestID
}
