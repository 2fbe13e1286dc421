// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/sapphire-mesh/sapphire/pkg/field"
)

// The get_*_info family (§4.D) all share one shape: a named file holding a
// back-to-back array of fixed-size structs, read in full through GetFile
// and decoded to exhaustion.

// RouteEntry is one row of a device's routing table.
type RouteEntry struct {
	DestIP    string
	DestShort uint16
	DestFlags uint8
	Cost      uint16
	Age       uint8
	HopCount  uint8
	Hops      [8]uint16
}

func routeEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "dest_ip", Field: &field.IPv4{}},
		{Name: "dest_short", Field: &field.Uint16{}},
		{Name: "dest_flags", Field: &field.Uint8{}},
		{Name: "cost", Field: &field.Uint16{}},
		{Name: "age", Field: &field.Uint8{}},
		{Name: "hop_count", Field: &field.Uint8{}},
		{Name: "hops", Field: &field.Array{New: func() field.Field { return &field.Uint16{} }, N: 8}},
	}}
}

// GetRouteInfo reads the device's route table ("routes") (§4.D).
func (s *Session) GetRouteInfo() ([]RouteEntry, error) {
	raw, err := s.GetFile("routes")
	if err != nil {
		return nil, fmt.Errorf("device: get_route_info: %w", err)
	}

	var out []RouteEntry
	for len(raw) > 0 {
		b := routeEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_route_info: %w", err)
		}
		hopsArr := b.Get("hops").(*field.Array)
		var hops [8]uint16
		for i, h := range hopsArr.Elements {
			hops[i] = h.(*field.Uint16).V
		}
		out = append(out, RouteEntry{
			DestIP:    b.Get("dest_ip").(*field.IPv4).String(),
			DestShort: b.Get("dest_short").(*field.Uint16).V,
			DestFlags: b.Get("dest_flags").(*field.Uint8).V,
			Cost:      b.Get("cost").(*field.Uint16).V,
			Age:       b.Get("age").(*field.Uint8).V,
			HopCount:  b.Get("hop_count").(*field.Uint8).V,
			Hops:      hops,
		})
		raw = tail
	}
	return out, nil
}

// NeighborEntry is one row of a device's 802.15.4 neighbor table.
type NeighborEntry struct {
	Flags         uint16
	IP            string
	ShortAddr     uint16
	ReplayCounter uint32
	LQI           uint8
	RSSI          uint8
	PRR           uint8
	ETX           uint8
	Age           uint8
}

func neighborEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "flags", Field: &field.Uint16{}},
		{Name: "ip", Field: &field.IPv4{}},
		{Name: "short_addr", Field: &field.Uint16{}},
		{Name: "iv", Field: &field.Array{New: func() field.Field { return &field.Uint8{} }, N: 16}},
		{Name: "replay_counter", Field: &field.Uint32{}},
		{Name: "lqi", Field: &field.Uint8{}},
		{Name: "rssi", Field: &field.Uint8{}},
		{Name: "prr", Field: &field.Uint8{}},
		{Name: "etx", Field: &field.Uint8{}},
		{Name: "delay", Field: &field.Uint8{}},
		{Name: "traffic_accumulator", Field: &field.Uint8{}},
		{Name: "traffic", Field: &field.Uint8{}},
		{Name: "age", Field: &field.Uint8{}},
	}}
}

// GetNeighborInfo reads the device's neighbor table ("neighbors") (§4.D).
func (s *Session) GetNeighborInfo() ([]NeighborEntry, error) {
	raw, err := s.GetFile("neighbors")
	if err != nil {
		return nil, fmt.Errorf("device: get_neighbor_info: %w", err)
	}

	var out []NeighborEntry
	for len(raw) > 0 {
		b := neighborEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_neighbor_info: %w", err)
		}
		out = append(out, NeighborEntry{
			Flags:         b.Get("flags").(*field.Uint16).V,
			IP:            b.Get("ip").(*field.IPv4).String(),
			ShortAddr:     b.Get("short_addr").(*field.Uint16).V,
			ReplayCounter: b.Get("replay_counter").(*field.Uint32).V,
			LQI:           b.Get("lqi").(*field.Uint8).V,
			RSSI:          b.Get("rssi").(*field.Uint8).V,
			PRR:           b.Get("prr").(*field.Uint8).V,
			ETX:           b.Get("etx").(*field.Uint8).V,
			Age:           b.Get("age").(*field.Uint8).V,
		})
		raw = tail
	}
	return out, nil
}

// DNSCacheEntry is one row of a device's resolver cache.
type DNSCacheEntry struct {
	Status uint8
	IP     string
	TTL    uint32
	Query  string
}

func dnsCacheEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "status", Field: &field.Uint8{}},
		{Name: "ip", Field: &field.IPv4{}},
		{Name: "ttl", Field: &field.Uint32{}},
		{Name: "query", Field: field.String128()},
	}}
}

// GetDNSInfo reads the device's resolver cache ("dns_cache") (§4.D).
func (s *Session) GetDNSInfo() ([]DNSCacheEntry, error) {
	raw, err := s.GetFile("dns_cache")
	if err != nil {
		return nil, fmt.Errorf("device: get_dns_info: %w", err)
	}

	var out []DNSCacheEntry
	for len(raw) > 0 {
		b := dnsCacheEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_dns_info: %w", err)
		}
		out = append(out, DNSCacheEntry{
			Status: b.Get("status").(*field.Uint8).V,
			IP:     b.Get("ip").(*field.IPv4).String(),
			TTL:    b.Get("ttl").(*field.Uint32).V,
			Query:  b.Get("query").(*field.FixedString).V,
		})
		raw = tail
	}
	return out, nil
}

// ThreadEntry is one row of a device's RTOS thread table.
type ThreadEntry struct {
	Name     string
	Flags    uint16
	Addr     uint16
	DataSize uint16
	RunTime  uint32
	Runs     uint32
	Line     uint16
}

func threadEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "name", Field: &field.FixedString{N: 64}},
		{Name: "flags", Field: &field.Uint16{}},
		{Name: "addr", Field: &field.Uint16{}},
		{Name: "data_size", Field: &field.Uint16{}},
		{Name: "run_time", Field: &field.Uint32{}},
		{Name: "runs", Field: &field.Uint32{}},
		{Name: "line", Field: &field.Uint16{}},
		{Name: "reserved", Field: &field.Array{New: func() field.Field { return &field.Uint8{} }, N: 32}},
	}}
}

// GetThreadInfo reads the device's RTOS thread table ("threadinfo") (§4.D).
func (s *Session) GetThreadInfo() ([]ThreadEntry, error) {
	raw, err := s.GetFile("threadinfo")
	if err != nil {
		return nil, fmt.Errorf("device: get_thread_info: %w", err)
	}

	var out []ThreadEntry
	for len(raw) > 0 {
		b := threadEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_thread_info: %w", err)
		}
		out = append(out, ThreadEntry{
			Name:     b.Get("name").(*field.FixedString).V,
			Flags:    b.Get("flags").(*field.Uint16).V,
			Addr:     b.Get("addr").(*field.Uint16).V,
			DataSize: b.Get("data_size").(*field.Uint16).V,
			RunTime:  b.Get("run_time").(*field.Uint32).V,
			Runs:     b.Get("runs").(*field.Uint32).V,
			Line:     b.Get("line").(*field.Uint16).V,
		})
		raw = tail
	}
	return out, nil
}

// GetGCInfo reads the device's flash garbage-collector sector erase counts
// ("gc_data") (§4.D).
func (s *Session) GetGCInfo() ([]uint32, error) {
	raw, err := s.GetFile("gc_data")
	if err != nil {
		return nil, fmt.Errorf("device: get_gc_info: %w", err)
	}

	arr := &field.Array{New: func() field.Field { return &field.Uint32{} }, N: -1}
	if _, err := arr.Unpack(raw); err != nil {
		return nil, fmt.Errorf("device: get_gc_info: %w", err)
	}
	out := make([]uint32, len(arr.Elements))
	for i, e := range arr.Elements {
		out[i] = e.(*field.Uint32).V
	}
	return out, nil
}

// DeviceDBEntry is one row of a gateway's device table ("devicedb"), the
// data the scanner reads to discover the devices behind a gateway (§4.F).
type DeviceDBEntry struct {
	ShortAddr uint16
	DeviceID  uint64
	IP        string
}

func deviceDBEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "short_addr", Field: &field.Uint16{}},
		{Name: "device_id", Field: &field.Uint64{}},
		{Name: "ip", Field: &field.IPv4{}},
	}}
}

// GetDeviceDB reads a gateway's device table ("devicedb") (§4.F).
func (s *Session) GetDeviceDB() ([]DeviceDBEntry, error) {
	raw, err := s.GetFile("devicedb")
	if err != nil {
		return nil, fmt.Errorf("device: get_device_db: %w", err)
	}

	var out []DeviceDBEntry
	for len(raw) > 0 {
		b := deviceDBEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_device_db: %w", err)
		}
		out = append(out, DeviceDBEntry{
			ShortAddr: b.Get("short_addr").(*field.Uint16).V,
			DeviceID:  b.Get("device_id").(*field.Uint64).V,
			IP:        b.Get("ip").(*field.IPv4).String(),
		})
		raw = tail
	}
	return out, nil
}

// BridgeEntry is one row of a gateway's 802.15.4 bridge lease table
// ("bridge").
type BridgeEntry struct {
	ShortAddr uint16
	IP        string
	Lease     uint32
	TimeLeft  uint32
	Flags     uint8
}

func bridgeEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "short_addr", Field: &field.Uint16{}},
		{Name: "ip", Field: &field.IPv4{}},
		{Name: "lease", Field: &field.Uint32{}},
		{Name: "time_left", Field: &field.Uint32{}},
		{Name: "flags", Field: &field.Uint8{}},
	}}
}

// GetBridgeInfo reads a gateway's bridge lease table ("bridge") (§4.F).
func (s *Session) GetBridgeInfo() ([]BridgeEntry, error) {
	raw, err := s.GetFile("bridge")
	if err != nil {
		return nil, fmt.Errorf("device: get_bridge_info: %w", err)
	}

	var out []BridgeEntry
	for len(raw) > 0 {
		b := bridgeEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_bridge_info: %w", err)
		}
		out = append(out, BridgeEntry{
			ShortAddr: b.Get("short_addr").(*field.Uint16).V,
			IP:        b.Get("ip").(*field.IPv4).String(),
			Lease:     b.Get("lease").(*field.Uint32).V,
			TimeLeft:  b.Get("time_left").(*field.Uint32).V,
			Flags:     b.Get("flags").(*field.Uint8).V,
		})
		raw = tail
	}
	return out, nil
}

// ArpEntry is one row of a gateway's Ethernet ARP cache ("arp_cache").
type ArpEntry struct {
	MAC string
	IP  string
	Age uint8
}

func arpEntryBody() *field.Struct {
	return &field.Struct{Fields: []field.Named{
		{Name: "eth_mac", Field: field.NewMAC48()},
		{Name: "ip", Field: &field.IPv4{}},
		{Name: "age", Field: &field.Uint8{}},
	}}
}

// GetArpInfo reads a gateway's Ethernet ARP cache ("arp_cache") (§4.F).
func (s *Session) GetArpInfo() ([]ArpEntry, error) {
	raw, err := s.GetFile("arp_cache")
	if err != nil {
		return nil, fmt.Errorf("device: get_arp_info: %w", err)
	}

	var out []ArpEntry
	for len(raw) > 0 {
		b := arpEntryBody()
		tail, err := b.Unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("device: get_arp_info: %w", err)
		}
		out = append(out, ArpEntry{
			MAC: b.Get("eth_mac").(*field.MAC48).String(),
			IP:  b.Get("ip").(*field.IPv4).String(),
			Age: b.Get("age").(*field.Uint8).V,
		})
		raw = tail
	}
	return out, nil
}
