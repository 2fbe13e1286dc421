// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scanner implements the periodic network discovery task (§4.F):
// broadcast for gateways, read each gateway's device table, and make sure
// every device it reports has an exchange Object.
package scanner

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sapphire-mesh/sapphire/internal/device"
	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
	"github.com/sapphire-mesh/sapphire/pkg/rdg"
)

// CollectWindow is how long the scanner waits for PollGateway replies after
// broadcasting (§4.F: "collect replies for 1 s").
const CollectWindow = time.Second

// ntpEpochOffset is the number of seconds between the NTP epoch (1900-01-01)
// and the Unix epoch, used to convert NetworkTimeInfo's ntp_seconds field.
const ntpEpochOffset = 2208988800

// Scanner owns the gocron job driving the 8-second discovery cadence and
// the registry it publishes newly found objects into.
type Scanner struct {
	registry      *exchange.Registry
	pool          *rdg.Pool
	selfOrigin    string
	discoveryAddr *net.UDPAddr
	commandPort   int
	timePort      int
	onFound       func(*exchange.Device)

	mu       sync.Mutex
	gateways map[uint64]*exchange.Gateway

	sched gocron.Scheduler
}

// New builds a Scanner. discoveryPort/commandPort/timePort are the
// gateway-services broadcast port, the per-device command port, and the
// dedicated RDG port for the gateway-services get-network-time request
// (§6: UDP 25002/.../25003); onFound is called once per gateway and once
// per discovered device on every scan pass, whether or not the object was
// newly published (the monitor uses this to learn about devices it
// already has a running session for).
func New(registry *exchange.Registry, pool *rdg.Pool, selfOrigin string, discoveryPort, commandPort, timePort int, onFound func(*exchange.Device)) *Scanner {
	return &Scanner{
		registry:      registry,
		pool:          pool,
		selfOrigin:    selfOrigin,
		discoveryAddr: &net.UDPAddr{IP: net.IPv4bcast, Port: discoveryPort},
		commandPort:   commandPort,
		timePort:      timePort,
		onFound:       onFound,
		gateways:      make(map[uint64]*exchange.Gateway),
	}
}

// Gateway returns the network-time tracking Gateway wrapper for a
// previously discovered gateway device id, if the scanner has adopted one.
func (s *Scanner) Gateway(deviceID uint64) (*exchange.Gateway, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gw, ok := s.gateways[deviceID]
	return gw, ok
}

// Start registers the scan as a gocron job on the given cadence and starts
// the scheduler. The first pass runs immediately.
func (s *Scanner) Start(interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("scanner: create scheduler: %w", err)
	}
	s.sched = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.scanOnce),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return fmt.Errorf("scanner: register job: %w", err)
	}

	sched.Start()
	return nil
}

// Shutdown stops the scheduler.
func (s *Scanner) Shutdown() {
	if s.sched != nil {
		s.sched.Shutdown()
	}
}

// scanOnce runs a single discovery pass. A failure scoped to one gateway
// never stops the others from being processed (§4.F).
func (s *Scanner) scanOnce() {
	gateways, err := s.discoverGateways()
	if err != nil {
		log.Warnf("scanner: discovery broadcast failed: %v", err)
		return
	}

	for _, gw := range gateways {
		gwDev := s.ensurePublished(gw.DeviceID, gw.ShortAddr, gw.Host)
		if gwDev == nil {
			continue
		}
		if s.onFound != nil {
			s.onFound(gwDev)
		}

		gateway := s.adoptGateway(gw.DeviceID, gwDev)
		if err := s.syncNetworkTime(gateway, gw.Host); err != nil {
			log.Warnf("scanner: gateway %d: network-time sync failed: %v", gw.DeviceID, err)
		}

		entries, err := s.fetchDeviceDB(gwDev)
		if err != nil {
			log.Warnf("scanner: gateway %d: reading devicedb failed: %v", gw.DeviceID, err)
			continue
		}
		for _, e := range entries {
			dev := s.ensurePublished(e.DeviceID, e.ShortAddr, net.ParseIP(e.IP))
			if dev == nil {
				continue
			}
			if s.onFound != nil {
				s.onFound(dev)
			}
		}
	}
}

// gatewayReply is one deduplicated PollGateway response.
type gatewayReply struct {
	DeviceID  uint64
	ShortAddr uint16
	Host      net.IP
}

// discoverGateways broadcasts PollGateway and collects replies for
// CollectWindow, deduplicated by device id (§4.F).
func (s *Scanner) discoverGateways() ([]gatewayReply, error) {
	conn, err := broadcastConn()
	if err != nil {
		return nil, fmt.Errorf("open broadcast socket: %w", err)
	}
	defer conn.Close()

	payload := protocol.GatewayServices.Encode(protocol.NewPollGateway())
	if _, err := conn.WriteToUDP(payload, s.discoveryAddr); err != nil {
		return nil, fmt.Errorf("send poll: %w", err)
	}

	seen := make(map[uint64]gatewayReply)
	deadline := time.Now().Add(CollectWindow)
	buf := make([]byte, 4096)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		conn.SetReadDeadline(deadline)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}

		resp, err := protocol.GatewayServices.Decode(buf[:n])
		if err != nil {
			log.Debugf("scanner: malformed gateway reply from %s: %v", from, err)
			continue
		}
		info, ok := resp.(*protocol.GatewayInfo)
		if !ok {
			continue
		}
		seen[info.DeviceID()] = gatewayReply{
			DeviceID:  info.DeviceID(),
			ShortAddr: info.ShortAddr(),
			Host:      from.IP,
		}
	}

	out := make([]gatewayReply, 0, len(seen))
	for _, g := range seen {
		out = append(out, g)
	}
	return out, nil
}

// fetchDeviceDB opens a throwaway device-command session to the gateway and
// reads its "devicedb" file (§4.F). It does not touch the KV-meta cache or
// firmware store: the monitor's own Scan does that once it adopts the
// device.
func (s *Scanner) fetchDeviceDB(gw *exchange.Device) ([]device.DeviceDBEntry, error) {
	host := exchange.DeviceHost(gw)
	if host == nil {
		return nil, fmt.Errorf("gateway has no usable host address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := rdg.Dial(ctx, s.pool, &net.UDPAddr{IP: host, Port: s.commandPort})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	sess := device.NewSession(gw, client, s.selfOrigin, nil, nil)
	return sess.GetDeviceDB()
}

// adoptGateway returns the Gateway wrapper tracking deviceID's network-time
// base, creating one the first time this gateway is seen and re-wrapping
// gwDev on every later pass so the Gateway's Device half never goes stale.
func (s *Scanner) adoptGateway(deviceID uint64, gwDev *exchange.Device) *exchange.Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	gw, ok := s.gateways[deviceID]
	if !ok {
		gw = exchange.NewGateway(gwDev)
		s.gateways[deviceID] = gw
		return gw
	}
	gw.Device = gwDev
	return gw
}

// syncNetworkTime performs the gateway-services get-network-time RDG
// round-trip (§3, §6: UDP port dedicated to "RDG for network-time") and
// records the returned (wcom, ntp) base pair on gateway.
func (s *Scanner) syncNetworkTime(gateway *exchange.Gateway, host net.IP) error {
	if host == nil {
		return fmt.Errorf("gateway has no usable host address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := rdg.Dial(ctx, s.pool, &net.UDPAddr{IP: host, Port: s.timePort})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	reply, err := client.Request(protocol.GatewayServices.Encode(protocol.NewGetNetworkTime()))
	if err != nil {
		return fmt.Errorf("request network time: %w", err)
	}

	resp, err := protocol.GatewayServices.Decode(reply)
	if err != nil {
		return fmt.Errorf("decode network-time reply: %w", err)
	}
	info, ok := resp.(*protocol.NetworkTimeInfo)
	if !ok {
		return fmt.Errorf("unexpected reply type %T", resp)
	}

	gateway.SetNetworkTimeBase(info.WcomBase(), ntpToTime(info.NTPSeconds(), info.NTPFraction()))
	return nil
}

// ntpToTime converts an NTP-epoch (seconds, 32-bit binary fraction) pair,
// as carried by NetworkTimeInfo, into an absolute time.Time.
func ntpToTime(seconds, fraction uint32) time.Time {
	unixSeconds := int64(seconds) - ntpEpochOffset
	nanos := int64(float64(fraction) / (1 << 32) * 1e9)
	return time.Unix(unixSeconds, nanos).UTC()
}

// ensurePublished builds a fresh Device object for deviceID (mirroring the
// source's createDevice-on-every-scan pattern) and publishes it only if the
// registry doesn't already carry one with this device id (§4.F: "ensure
// there is an exchange Object for the device; if not, publish one"). It
// returns the freshly built object either way, since that's what the rest
// of the scan pass (devicedb walk, the "found" callback) needs to talk to
// the device over the network regardless of publish status. Gateway vs.
// plain device is not recorded here: that distinction is made from the
// firmware id once the monitor's Scan adopts the object (§3, §4.G).
func (s *Scanner) ensurePublished(deviceID uint64, shortAddr uint16, host net.IP) *exchange.Device {
	dev := exchange.NewDevice(s.selfOrigin, deviceID, shortAddr, host)

	already := len(s.registry.Query(exchange.Query{
		Match: map[string]interface{}{"device_id": deviceID},
	})) > 0

	if !already {
		if err := s.registry.Publish(dev.Object); err != nil {
			log.Warnf("scanner: publish device %d failed: %v", deviceID, err)
			return nil
		}
	}
	return dev
}
