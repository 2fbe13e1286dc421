// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rdg

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustListen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return conn
}

func TestHeaderPackParse(t *testing.T) {
	h := Header{Version: 0, Server: true, AckReq: false, Ack: true, ID: 0x42}
	parsed, tail, err := ParseHeader(append(h.Pack(), 'x'))
	require.NoError(t, err)
	require.Equal(t, h, parsed)
	require.Equal(t, []byte("x"), tail)
}

func TestServerReplyAcceptance(t *testing.T) {
	// §8 invariant 5: accept exactly (version=0, server=1, ack_req=0, ack=1, id==request.id)
	good := Header{Version: 0, Server: true, Ack: true, AckReq: false, ID: 5}
	require.True(t, good.IsServerReply(5))

	wrongID := Header{Version: 0, Server: true, Ack: true, AckReq: false, ID: 6}
	require.False(t, wrongID.IsServerReply(5))

	notAck := Header{Version: 0, Server: true, Ack: false, AckReq: false, ID: 5}
	require.False(t, notAck.IsServerReply(5))

	ackReqSet := Header{Version: 0, Server: true, Ack: true, AckReq: true, ID: 5}
	require.False(t, ackReqSet.IsServerReply(5))

	notServer := Header{Version: 0, Server: false, Ack: true, AckReq: false, ID: 5}
	require.False(t, notServer.IsServerReply(5))
}

func TestClientServerRoundTrip(t *testing.T) {
	srvConn := mustListen(t)
	defer srvConn.Close()

	go func() {
		buf := make([]byte, 1024)
		n, from, err := srvConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		hdr, payload, _ := ParseHeader(buf[:n])
		reply := Header{Version: 0, Server: true, Ack: true, AckReq: false, ID: hdr.ID}.Pack()
		reply = append(reply, []byte("echo:"+string(payload))...)
		srvConn.WriteToUDP(reply, from)
	}()

	pool := NewPool(4)
	client, err := Dial(context.Background(), pool, srvConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Request([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "echo:hi", string(reply))
	require.Equal(t, 0, client.PacketsResent)
}

// S3 — ARQ retry: server drops the first two requests for a given id and
// replies to the third. Client should return the reply with
// PacketsResent == 2 and take at least 1.0+1.1s.
func TestClientRetriesOnDroppedRequests(t *testing.T) {
	srvConn := mustListen(t)
	defer srvConn.Close()

	var seen atomic.Int32
	go func() {
		buf := make([]byte, 1024)
		for {
			n, from, err := srvConn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			attempt := seen.Add(1)
			if attempt <= 2 {
				continue // drop
			}
			hdr, _, _ := ParseHeader(buf[:n])
			reply := Header{Version: 0, Server: true, Ack: true, AckReq: false, ID: hdr.ID}.Pack()
			reply = append(reply, []byte("ok")...)
			srvConn.WriteToUDP(reply, from)
			return
		}
	}()

	pool := NewPool(4)
	client, err := Dial(context.Background(), pool, srvConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	start := time.Now()
	reply, err := client.Request([]byte("req"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, "ok", string(reply))
	require.Equal(t, 2, client.PacketsResent)
	require.GreaterOrEqual(t, elapsed, 2*time.Second)
}

func TestClientTimesOutWhenServerNeverReplies(t *testing.T) {
	if testing.Short() {
		t.Skip("retry exhaustion takes several seconds")
	}
	srvConn := mustListen(t)
	defer srvConn.Close()
	// Never read -> never reply.

	pool := NewPool(4)
	client, err := Dial(context.Background(), pool, srvConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Request([]byte("gone"))
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, MaxRetries, client.PacketsResent)
}

func TestPoolBoundsConcurrentAcquisitions(t *testing.T) {
	pool := NewPool(1)
	require.NoError(t, pool.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		pool.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should have blocked while pool is full")
	case <-time.After(100 * time.Millisecond):
	}

	pool.Release()
	<-acquired
}
