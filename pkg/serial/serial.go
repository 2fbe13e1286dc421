// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package serial implements the byte-stream fallback channel (§6) used
// when a device has no RDG/UDP route: a framed, CRC-checked, ACK/NAK
// stop-and-wait protocol over any io.ReadWriter (a real UART in
// production, a pipe in tests).
package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sigurn/crc16"

	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Wire constants (§6 "Serial fallback channel").
const (
	sof = 0xFD
	ack = 0xA1
	nak = 0x1B
)

// MaxRetries is how many times one frame's handshake is retried before
// giving up (§6: "NAK or mismatch triggers retry (up to 4)").
const MaxRetries = 4

// ErrNoAck is returned when a frame's retries are exhausted without a
// successful handshake.
var ErrNoAck = errors.New("serial: handshake failed after retries")

var crcTable = crc16.MakeTable(crc16.CRC16_AUG_CCITT)

// Channel is a framed, ACK/NAK stop-and-wait byte-stream transport (§6).
// It satisfies internal/exchange.Channel so a device.Session can talk to
// a gateway lacking UDP reachability exactly as it would over RDG.
//
// Request calls are serialized behind mu, so a Channel carries one
// request/reply exchange at a time.
type Channel struct {
	mu   sync.Mutex
	rw   io.ReadWriter
	r    *bufio.Reader
	name string
}

// New wraps rw (typically an opened serial port) as a Channel.
func New(name string, rw io.ReadWriter) *Channel {
	return &Channel{rw: rw, r: bufio.NewReader(rw), name: name}
}

// Close closes the underlying transport if it supports it.
func (c *Channel) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Request sends payload as one framed request, then reads back one
// framed reply, each leg handshaken independently with its own retry
// budget (§6).
func (c *Channel) Request(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sendFrame(payload); err != nil {
		return nil, fmt.Errorf("serial(%s): send request: %w", c.name, err)
	}
	reply, err := c.recvFrame()
	if err != nil {
		return nil, fmt.Errorf("serial(%s): receive reply: %w", c.name, err)
	}
	return reply, nil
}

// sendFrame writes one frame and waits for the peer's ACK byte,
// retransmitting the whole frame on a NAK or any other response up to
// MaxRetries times (§6).
func (c *Channel) sendFrame(payload []byte) error {
	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if _, err := c.rw.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}

		b, err := c.r.ReadByte()
		if err != nil {
			log.Warnf("serial(%s): send attempt %d: %v", c.name, attempt, err)
			continue
		}
		switch b {
		case ack:
			return nil
		case nak:
			log.Warnf("serial(%s): send attempt %d: peer nak'd", c.name, attempt)
		default:
			log.Warnf("serial(%s): send attempt %d: unexpected byte 0x%02x", c.name, attempt, b)
		}
	}
	return ErrNoAck
}

// recvFrame reads one frame, validating the header's length/~length pair
// and the trailing CRC, NAK-ing and retrying on a bad frame up to
// MaxRetries times, and ACK-ing once a good frame arrives (§6).
func (c *Channel) recvFrame() ([]byte, error) {
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		payload, err := decodeFrame(c.r)
		if err != nil {
			log.Warnf("serial(%s): recv attempt %d: %v", c.name, attempt, err)
			c.rw.Write([]byte{nak})
			continue
		}
		if _, err := c.rw.Write([]byte{ack}); err != nil {
			return nil, fmt.Errorf("write ack: %w", err)
		}
		return payload, nil
	}
	return nil, ErrNoAck
}

// encodeFrame renders payload as SOF, the {len, ~len} header, the
// payload, and its big-endian CRC-16/AUG-CCITT (§6).
func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("serial: payload too large: %d bytes", len(payload))
	}
	l := uint16(len(payload))

	frame := make([]byte, 0, 1+4+len(payload)+2)
	frame = append(frame, sof)
	frame = append(frame, byte(l>>8), byte(l))
	frame = append(frame, byte(^l>>8), byte(^l))
	frame = append(frame, payload...)

	crc := crc16.Checksum(payload, crcTable)
	frame = append(frame, byte(crc>>8), byte(crc))
	return frame, nil
}

// decodeFrame reads one frame's header, payload, and CRC, resynchronizing
// on the start code first so a receiver that starts mid-stream (or after
// a malformed frame) can recover on the next attempt.
func decodeFrame(r *bufio.Reader) ([]byte, error) {
	if err := syncToSOF(r); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	l := uint16(header[0])<<8 | uint16(header[1])
	lComplement := uint16(header[2])<<8 | uint16(header[3])
	if l != ^lComplement {
		return nil, fmt.Errorf("header length/complement mismatch")
	}

	payload := make([]byte, l)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	crcBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return nil, fmt.Errorf("read crc: %w", err)
	}
	want := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])
	got := crc16.Checksum(payload, crcTable)
	if want != got {
		return nil, fmt.Errorf("crc mismatch: frame says 0x%04x, computed 0x%04x", want, got)
	}
	return payload, nil
}

// syncToSOF discards bytes until it finds the frame start code.
func syncToSOF(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("sync to sof: %w", err)
		}
		if b == sof {
			return nil
		}
	}
}
