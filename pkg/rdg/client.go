// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rdg

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"
)

// ErrTimeout is returned when a client request exhausts its retries
// without a matching reply (§4.C, §7 "Unreachable").
var ErrTimeout = errors.New("rdg: request timed out")

// MaxRetries is the maximum number of retransmissions before a client
// request gives up (§4.C: "retry up to 5 times").
const MaxRetries = 5

// BaseTimeout is the first retry's wait; each subsequent retry adds
// RetryStep (§4.C: "starting with a 1.0 s timeout, adding 0.1 s per retry").
const (
	BaseTimeout = time.Second
	RetryStep   = 100 * time.Millisecond
)

// Client is a UDPX client bound to one peer. It is not safe for concurrent
// Request calls: per-device serialization (§5) is the caller's
// responsibility, enforced by owning exactly one Client per device session.
type Client struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	pool *Pool

	// PacketsResent counts retransmissions made by the most recent Request
	// call (§8 S3).
	PacketsResent int
}

// Dial opens a UDP socket and targets it at peer, acquiring a slot from
// pool first (blocking if the pool is saturated, §4.C/§5).
func Dial(ctx context.Context, pool *Pool, peer *net.UDPAddr) (*Client, error) {
	if err := pool.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rdg: acquire pool slot: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, peer)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("rdg: dial %s: %w", peer, err)
	}

	return &Client{conn: conn, peer: peer, pool: pool}, nil
}

// Close releases the socket and its pool slot.
func (c *Client) Close() error {
	defer c.pool.Release()
	return c.conn.Close()
}

// Request sends payload as a UDPX request and returns the peer's matching
// reply payload, retrying with the backoff schedule in §4.C. Any datagram
// that does not satisfy Header.IsServerReply for this request's id is
// ignored and counts toward the current attempt's timeout, not a fresh one
// (§4.C: "Any other response is ignored (counts as a timeout)").
func (c *Client) Request(payload []byte) ([]byte, error) {
	id := uint8(rand.Intn(256))
	req := Header{Version: 0, Server: false, AckReq: true, Ack: false, ID: id}.Pack()
	req = append(req, payload...)

	c.PacketsResent = 0
	recvBuf := make([]byte, 65536)

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if _, err := c.conn.Write(req); err != nil {
			return nil, fmt.Errorf("rdg: send: %w", err)
		}

		timeout := BaseTimeout + time.Duration(attempt)*RetryStep
		deadline := time.Now().Add(timeout)

		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			c.conn.SetReadDeadline(deadline)
			n, from, err := c.conn.ReadFromUDP(recvBuf)
			if err != nil {
				break // timed out (or transient error): move to next attempt
			}

			hdr, tail, perr := ParseHeader(recvBuf[:n])
			if perr != nil || !hdr.IsServerReply(id) {
				continue // not our reply; keep listening within this attempt's window
			}

			// Peer may have replied from a fresh source port (§4.C).
			c.peer = from
			return append([]byte(nil), tail...), nil
		}

		if attempt < MaxRetries {
			c.PacketsResent++
		}
	}

	return nil, ErrTimeout
}
