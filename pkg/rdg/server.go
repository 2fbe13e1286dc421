// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rdg

import (
	"fmt"
	"net"

	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Handler answers one decoded client request payload with the bytes to
// send back (the notification server and any device-facing listener
// implement this).
type Handler func(from *net.UDPAddr, payload []byte) []byte

// Server binds a UDP socket and answers UDPX client requests, validating
// version/server/ack per §4.C and mirroring the request id in its reply.
type Server struct {
	conn *net.UDPConn
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr *net.UDPAddr) (*Server, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rdg: listen %s: %w", addr, err)
	}
	return &Server{conn: conn}, nil
}

// LocalAddr returns the bound address.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close stops accepting datagrams.
func (s *Server) Close() error { return s.conn.Close() }

// Serve reads datagrams until running returns false or a fatal socket error
// occurs; per-datagram problems are logged and skipped (§4.E, §7:
// "continues on per-message exceptions; only fatal socket errors stop it").
func (s *Server) Serve(running func() bool, handle Handler) error {
	buf := make([]byte, 65536)
	for running() {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !running() {
				return nil
			}
			return fmt.Errorf("rdg: fatal read error: %w", err)
		}

		hdr, payload, err := ParseHeader(buf[:n])
		if err != nil {
			log.Warnf("rdg: server: %v", err)
			continue
		}
		if !hdr.IsClientRequest() {
			log.Debugf("rdg: server: dropping malformed client request from %s", from)
			continue
		}

		reply := handle(from, append([]byte(nil), payload...))

		replyHdr := Header{Version: 0, Server: true, AckReq: false, Ack: true, ID: hdr.ID}.Pack()
		if _, err := s.conn.WriteToUDP(append(replyHdr, reply...), from); err != nil {
			log.Warnf("rdg: server: reply to %s failed: %v", from, err)
		}
	}
	return nil
}
