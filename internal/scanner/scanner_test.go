// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scanner

import (
	"net"
	"testing"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
	"github.com/sapphire-mesh/sapphire/pkg/rdg"
	"github.com/stretchr/testify/require"
)

func newTestScanner() *Scanner {
	return &Scanner{
		registry:   exchange.New("scanner-test"),
		selfOrigin: "scanner-test",
		pool:       rdg.NewPool(4),
		gateways:   make(map[uint64]*exchange.Gateway),
	}
}

func TestEnsurePublishedPublishesOnce(t *testing.T) {
	s := newTestScanner()
	host := net.IPv4(10, 0, 0, 1)

	first := s.ensurePublished(7, 3, host)
	require.NotNil(t, first)
	require.Len(t, s.registry.Query(exchange.Query{All: true}), 1)

	second := s.ensurePublished(7, 3, host)
	require.NotNil(t, second)
	require.Len(t, s.registry.Query(exchange.Query{All: true}), 1, "a known device_id must not be republished")

	require.NotSame(t, first.Object, second.Object, "each scan pass builds a fresh object, regardless of publish status")
}

func TestEnsurePublishedDistinctDevices(t *testing.T) {
	s := newTestScanner()
	host := net.IPv4(10, 0, 0, 1)

	s.ensurePublished(1, 1, host)
	s.ensurePublished(2, 2, host)

	require.Len(t, s.registry.Query(exchange.Query{All: true}), 2)
}

func TestDiscoverGatewaysDedupesByDeviceID(t *testing.T) {
	seen := make(map[uint64]gatewayReply)
	add := func(info gatewayReply) { seen[info.DeviceID] = info }

	add(gatewayReply{DeviceID: 9, ShortAddr: 1, Host: net.IPv4(10, 0, 0, 5)})
	add(gatewayReply{DeviceID: 9, ShortAddr: 1, Host: net.IPv4(10, 0, 0, 5)})
	add(gatewayReply{DeviceID: 10, ShortAddr: 2, Host: net.IPv4(10, 0, 0, 6)})

	require.Len(t, seen, 2, "repeated replies from the same gateway must collapse to one entry")
}

func TestSyncNetworkTimePopulatesGatewayBase(t *testing.T) {
	srvConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer srvConn.Close()

	go func() {
		buf := make([]byte, 1024)
		n, from, err := srvConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		hdr, _, _ := rdg.ParseHeader(buf[:n])
		reply := rdg.Header{Version: 0, Server: true, Ack: true, AckReq: false, ID: hdr.ID}.Pack()
		info := protocol.NewNetworkTimeInfo()
		info.Body().Get("wcom_network_time_base").(*field.Uint64).V = 123456
		info.Body().Get("ntp_seconds").(*field.Uint32).V = 2208988800 + 1000 // 1000s after the Unix epoch
		info.Body().Get("ntp_fraction").(*field.Uint32).V = 0
		reply = append(reply, protocol.GatewayServices.Encode(info)...)
		srvConn.WriteToUDP(reply, from)
	}()

	s := newTestScanner()
	s.timePort = srvConn.LocalAddr().(*net.UDPAddr).Port

	dev := exchange.NewDevice(s.selfOrigin, 55, 1, net.IPv4(127, 0, 0, 1))
	gw := s.adoptGateway(55, dev)

	require.NoError(t, s.syncNetworkTime(gw, net.IPv4(127, 0, 0, 1)))
	require.True(t, gw.Valid(time.Now()))
	require.Equal(t, time.Unix(1000, 0).UTC(), gw.Translate(123456))
}

func TestSyncNetworkTimeRejectsMissingHost(t *testing.T) {
	s := newTestScanner()
	dev := exchange.NewDevice(s.selfOrigin, 56, 1, nil)
	gw := s.adoptGateway(56, dev)

	require.Error(t, s.syncNetworkTime(gw, nil))
}

func TestAdoptGatewayReusesWrapperAcrossScans(t *testing.T) {
	s := newTestScanner()
	devA := exchange.NewDevice(s.selfOrigin, 77, 1, net.IPv4(10, 0, 0, 1))
	gwA := s.adoptGateway(77, devA)
	gwA.SetNetworkTimeBase(42, time.Unix(1, 0))

	devB := exchange.NewDevice(s.selfOrigin, 77, 1, net.IPv4(10, 0, 0, 2))
	gwB := s.adoptGateway(77, devB)

	require.Same(t, gwA, gwB, "a gateway's network-time base must survive re-adoption on later scans")
	require.True(t, gwB.Valid(time.Now()))
}
