// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package serial

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/require"
)

// pairedConn is an in-memory io.ReadWriter pair, letting a test drive
// both ends of the "wire" without a real serial port.
type pairedConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pairedConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pairedConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func newPipePair() (pairedConn, pairedConn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return pairedConn{r: r1, w: w2}, pairedConn{r: r2, w: w1}
}

// goodPeer plays the role of a well-behaved device: it ACKs the first
// valid frame it reads, then sends back reply as its own frame and waits
// for our ACK.
func goodPeer(t *testing.T, conn pairedConn, reply []byte) {
	t.Helper()
	r := bufio.NewReader(conn)

	payload, err := decodeFrame(r)
	require.NoError(t, err)
	_, err = conn.Write([]byte{ack})
	require.NoError(t, err)
	t.Logf("peer received request: % x", payload)

	frame, err := encodeFrame(reply)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(ack), b)
}

func TestChannelRequestRoundTrip(t *testing.T) {
	local, remote := newPipePair()
	ch := New("test", local)
	defer ch.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		goodPeer(t, remote, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	}()

	reply, err := ch.Request([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, reply)
	<-done
}

func TestChannelSendRetriesOnNak(t *testing.T) {
	local, remote := newPipePair()
	ch := New("test", local)
	defer ch.Close()

	go func() {
		r := bufio.NewReader(remote)

		_, err := decodeFrame(r)
		require.NoError(t, err)
		remote.Write([]byte{nak})

		payload, err := decodeFrame(r)
		require.NoError(t, err)
		require.Equal(t, []byte{0xAA}, payload)
		remote.Write([]byte{ack})

		frame, err := encodeFrame([]byte{0x99})
		require.NoError(t, err)
		remote.Write(frame)

		b, err := r.ReadByte()
		require.NoError(t, err)
		require.Equal(t, byte(ack), b)
	}()

	reply, err := ch.Request([]byte{0xAA})
	require.NoError(t, err)
	require.Equal(t, []byte{0x99}, reply)
}

func TestChannelGivesUpAfterMaxRetries(t *testing.T) {
	local, remote := newPipePair()
	ch := New("test", local)
	defer ch.Close()

	go func() {
		r := bufio.NewReader(remote)
		for i := 0; i <= MaxRetries; i++ {
			if _, err := decodeFrame(r); err != nil {
				return
			}
			remote.Write([]byte{nak})
		}
	}()

	_, err := ch.Request([]byte{0x01})
	require.ErrorIs(t, err, ErrNoAck)
}

func TestDecodeFrameRejectsBadHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(sof)
	buf.Write([]byte{0x00, 0x02, 0x00, 0x00}) // complement wrong
	buf.Write([]byte{0x01, 0x02})
	crc := crc16.Checksum([]byte{0x01, 0x02}, crcTable)
	buf.WriteByte(byte(crc >> 8))
	buf.WriteByte(byte(crc))

	_, err := decodeFrame(bufio.NewReader(&buf))
	require.ErrorContains(t, err, "complement mismatch")
}

func TestDecodeFrameRejectsBadCRC(t *testing.T) {
	frame, err := encodeFrame([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xff

	_, err = decodeFrame(bufio.NewReader(bytes.NewReader(frame)))
	require.ErrorContains(t, err, "crc mismatch")
}

func TestDecodeFrameResyncsPastGarbage(t *testing.T) {
	frame, err := encodeFrame([]byte{0x7, 0x8})
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x11, 0x22})
	buf.Write(frame)

	payload, err := decodeFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, []byte{0x7, 0x8}, payload)
}
