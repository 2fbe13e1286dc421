// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
	"github.com/stretchr/testify/require"
)

// fakeTarget records the last applied notification and can be made to
// reject names, types, or applications for the drop-path tests.
type fakeTarget struct {
	names      map[[2]int]string
	types      map[string]protocol.KVType
	applyErr   error
	appliedAt  time.Time
	appliedVal interface{}
	applied    bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{names: map[[2]int]string{}, types: map[string]protocol.KVType{}}
}

func (t *fakeTarget) ParamName(group, id int) (string, bool) {
	n, ok := t.names[[2]int{group, id}]
	return n, ok
}

func (t *fakeTarget) KVType(name string) (protocol.KVType, bool) {
	k, ok := t.types[name]
	return k, ok
}

func (t *fakeTarget) ApplyNotification(group, id int, value interface{}, at, now time.Time) error {
	if t.applyErr != nil {
		return t.applyErr
	}
	t.applied = true
	t.appliedVal = value
	t.appliedAt = at
	return nil
}

// fakeApplier resolves a single device id to a fakeTarget, or reports it
// unknown.
type fakeApplier struct {
	devices map[uint64]*fakeTarget
}

func (a *fakeApplier) DeviceByID(id uint64) (Target, bool) {
	t, ok := a.devices[id]
	return t, ok
}

func packNotification(t *testing.T, flags uint8, deviceID uint64, ntpSeconds, ntpFraction uint32, group, id uint8, dtype protocol.KVType, data []byte) []byte {
	t.Helper()
	body := &field.Struct{Fields: []field.Named{
		{Name: "flags", Field: &field.Uint8{V: flags}},
		{Name: "device_id", Field: &field.Uint64{V: deviceID}},
		{Name: "ntp_seconds", Field: &field.Uint32{V: ntpSeconds}},
		{Name: "ntp_fraction", Field: &field.Uint32{V: ntpFraction}},
		{Name: "group", Field: &field.Uint8{V: group}},
		{Name: "id", Field: &field.Uint8{V: id}},
		{Name: "data_type", Field: &field.Uint8{V: uint8(dtype)}},
		{Name: "data", Field: &field.Binary{N: -1, V: data}},
	}}
	return body.Pack()
}

func newServerUnderTest(applier Applier) *Server {
	return &Server{devices: applier}
}

func TestHandleAppliesDecodedNotification(t *testing.T) {
	target := newFakeTarget()
	target.names[[2]int{1, 1}] = "temp_c"
	target.types["temp_c"] = protocol.KVFloat32

	payload := packNotification(t, 0, 42, 3913056000, 0, 1, 1, protocol.KVFloat32, (&field.Float32{V: 21.5}).Pack())

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{42: target}})
	s.handle(payload)

	require.True(t, target.applied)
	require.InDelta(t, 21.5, target.appliedVal, 0.001)
	require.Equal(t, 2024, target.appliedAt.Year())
}

func TestHandleDropsUnknownDevice(t *testing.T) {
	payload := packNotification(t, 0, 99, 0, 0, 1, 1, protocol.KVFloat32, (&field.Float32{V: 1}).Pack())

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{}})
	require.NotPanics(t, func() { s.handle(payload) })
}

func TestHandleDropsUnrecognizedAddress(t *testing.T) {
	target := newFakeTarget()
	payload := packNotification(t, 0, 7, 0, 0, 9, 9, protocol.KVFloat32, (&field.Float32{V: 1}).Pack())

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{7: target}})
	s.handle(payload)

	require.False(t, target.applied)
}

func TestHandleDropsDataTypeMismatch(t *testing.T) {
	target := newFakeTarget()
	target.names[[2]int{1, 1}] = "temp_c"
	target.types["temp_c"] = protocol.KVUint8 // declared type disagrees with the wire data_type below

	payload := packNotification(t, 0, 7, 0, 0, 1, 1, protocol.KVFloat32, (&field.Float32{V: 1}).Pack())

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{7: target}})
	s.handle(payload)

	require.False(t, target.applied)
}

func TestHandleBootModeFlagIsPassedThroughUnaffected(t *testing.T) {
	target := newFakeTarget()
	target.names[[2]int{2, 3}] = "boot_mode"
	target.types["boot_mode"] = protocol.KVUint8

	payload := packNotification(t, protocol.BootModeFlag, 7, 0, 0, 2, 3, protocol.KVUint8, (&field.Uint8{V: 1}).Pack())

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{7: target}})
	s.handle(payload)

	require.True(t, target.applied)
	require.Equal(t, uint8(1), target.appliedVal)
}

func TestHandleSwallowsApplyError(t *testing.T) {
	target := newFakeTarget()
	target.names[[2]int{1, 1}] = "temp_c"
	target.types["temp_c"] = protocol.KVFloat32
	target.applyErr = errors.New("boom")

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{7: target}})
	payload := packNotification(t, 0, 7, 0, 0, 1, 1, protocol.KVFloat32, (&field.Float32{V: 1}).Pack())

	require.NotPanics(t, func() { s.handle(payload) })
}

func TestHandleDropsNotificationsOverTheRateLimit(t *testing.T) {
	target := newFakeTarget()
	target.names[[2]int{1, 1}] = "temp_c"
	target.types["temp_c"] = protocol.KVFloat32

	s := newServerUnderTest(&fakeApplier{devices: map[uint64]*fakeTarget{7: target}})
	payload := packNotification(t, 0, 7, 0, 0, 1, 1, protocol.KVFloat32, (&field.Float32{V: 1}).Pack())

	for i := 0; i < perDeviceBurst; i++ {
		s.handle(payload)
	}
	require.True(t, target.applied, "burst capacity should allow the initial run through")

	target.applied = false
	s.handle(payload)
	require.False(t, target.applied, "a notification past the burst budget must be dropped")
}

func TestLimiterForIsPerDevice(t *testing.T) {
	s := newServerUnderTest(&fakeApplier{})
	a := s.limiterFor(1)
	b := s.limiterFor(2)
	require.NotSame(t, a, b)
	require.Same(t, a, s.limiterFor(1))
}

func TestNTPFractionToDuration(t *testing.T) {
	require.Equal(t, time.Duration(0), ntpFractionToDuration(0))
	require.InDelta(t, float64(500*time.Millisecond), float64(ntpFractionToDuration(1<<31)), float64(time.Millisecond))
}
