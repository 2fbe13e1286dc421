// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"net"
	"testing"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/sapphire-mesh/sapphire/pkg/protocol"
	"github.com/stretchr/testify/require"
)

const testOrigin = "monitor-1"

// fakeChannel answers device-command requests with a caller-supplied
// handler, standing in for the RDG client/serial channel (§4.D).
type fakeChannel struct {
	handle func(req protocol.Payload) (protocol.Payload, error)
	fail   bool
}

func (c *fakeChannel) Request(payload []byte) ([]byte, error) {
	if c.fail {
		return nil, &net.OpError{Op: "write", Err: net.ErrClosed}
	}
	req, err := protocol.DeviceCommand.Decode(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.handle(req)
	if err != nil {
		return nil, err
	}
	return protocol.DeviceCommandResponse.Encode(resp), nil
}

func (c *fakeChannel) Close() error { return nil }

// fakeMetaStore is an in-memory KVMetaStore.
type fakeMetaStore struct{ entries map[string][]byte }

func newFakeMetaStore() *fakeMetaStore { return &fakeMetaStore{entries: map[string][]byte{}} }

func (f *fakeMetaStore) Get(hash string) ([]byte, bool, error) {
	v, ok := f.entries[hash]
	return v, ok, nil
}
func (f *fakeMetaStore) Put(hash string, raw []byte) error {
	f.entries[hash] = raw
	return nil
}

func newTestDevice() *exchange.Device {
	return exchange.NewDevice(testOrigin, 99, 5, net.IPv4(10, 0, 0, 9))
}

func TestSessionEchoRoundTrip(t *testing.T) {
	ch := &fakeChannel{handle: func(req protocol.Payload) (protocol.Payload, error) {
		echo := req.(*protocol.EchoRequest)
		return protocol.NewEchoResponse(echo.Payload()), nil
	}}
	s := NewSession(newTestDevice(), ch, testOrigin, newFakeMetaStore(), nil)

	got, err := s.Echo("hello")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestSessionSendFailureMarksOffline(t *testing.T) {
	dev := newTestDevice()
	require.NoError(t, dev.SetStatus(testOrigin, exchange.StatusOnline))

	ch := &fakeChannel{fail: true}
	s := NewSession(dev, ch, testOrigin, newFakeMetaStore(), nil)

	_, err := s.Echo("hi")
	require.Error(t, err)
	require.Equal(t, exchange.StatusOffline, dev.Status())
}

func TestSessionRebootEntersRebootThenOffline(t *testing.T) {
	dev := newTestDevice()
	ch := &fakeChannel{handle: func(req protocol.Payload) (protocol.Payload, error) {
		return protocol.NewEmptyResponse(protocol.MsgReboot), nil
	}}
	s := NewSession(dev, ch, testOrigin, newFakeMetaStore(), nil)

	require.NoError(t, s.Reboot())
	require.Equal(t, exchange.StatusReboot, dev.Status())

	require.Eventually(t, func() bool {
		return dev.Status() == exchange.StatusOffline
	}, 2*time.Second, 10*time.Millisecond)
}

// fakeFileServer backs GetFile/PutFile against an in-memory byte slice,
// exercising the 512-byte chunk termination boundary (§4.D, §8).
type fakeFileServer struct{ data []byte }

func (f *fakeFileServer) handle(req protocol.Payload) (protocol.Payload, error) {
	switch r := req.(type) {
	case *protocol.FileGetIDRequest:
		return protocol.NewFileGetIDResponse(1), nil
	case *protocol.FileCreateRequest:
		return protocol.NewFileGetIDResponse(1), nil
	case *protocol.FileReadRequest:
		offset := int(r.Body().Get("offset").(*field.Uint32).V)
		if offset >= len(f.data) {
			return protocol.NewFileReadResponse(nil), nil
		}
		end := offset + fileTransferChunk
		if end > len(f.data) {
			end = len(f.data)
		}
		return protocol.NewFileReadResponse(f.data[offset:end]), nil
	case *protocol.FileWriteRequest:
		offset := int(r.Body().Get("offset").(*field.Uint32).V)
		data := r.Body().Get("data").(*field.Binary).V
		if offset+len(data) > len(f.data) {
			grown := make([]byte, offset+len(data))
			copy(grown, f.data)
			f.data = grown
		}
		copy(f.data[offset:], data)
		return protocol.NewFileWriteResponse(uint32(len(data))), nil
	}
	return nil, nil
}

func TestGetFileStopsOnShortChunk(t *testing.T) {
	srv := &fakeFileServer{data: make([]byte, fileTransferChunk+100)}
	for i := range srv.data {
		srv.data[i] = byte(i)
	}
	ch := &fakeChannel{handle: srv.handle}
	s := NewSession(newTestDevice(), ch, testOrigin, newFakeMetaStore(), nil)

	got, err := s.GetFile("blob")
	require.NoError(t, err)
	require.Equal(t, srv.data, got)
}

func TestPutFileWritesInChunks(t *testing.T) {
	srv := &fakeFileServer{}
	ch := &fakeChannel{handle: srv.handle}
	s := NewSession(newTestDevice(), ch, testOrigin, newFakeMetaStore(), nil)

	payload := make([]byte, fileTransferChunk*2+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, s.PutFile("blob", payload))
	require.Equal(t, payload, srv.data)
}

func TestBatchAddrsRespects548ByteLimit(t *testing.T) {
	sizeOf := func(a kvAddr) (int, error) { return responseEntrySize(protocol.KVUint32) }

	addrs40 := make([]kvAddr, 40)
	for i := range addrs40 {
		addrs40[i] = kvAddr{Group: 1, ID: uint8(i)}
	}
	batches, err := batchAddrs(addrs40, sizeOf)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	addrs100 := make([]kvAddr, 100)
	for i := range addrs100 {
		addrs100[i] = kvAddr{Group: 1, ID: uint8(i)}
	}
	batches, err = batchAddrs(addrs100, sizeOf)
	require.NoError(t, err)
	require.Len(t, batches, 2)
}

func TestGetKVSetKVRoundTrip(t *testing.T) {
	dev := newTestDevice()
	dev.SetKVMeta("temp_c", protocol.KVMeta{Group: 1, ID: 1, Type: protocol.KVFloat32})
	dev.SetKVMeta("name", protocol.KVMeta{Group: 1, ID: 2, Type: protocol.KVString128})
	dev.SetKVMeta("locked", protocol.KVMeta{Group: 1, ID: 3, Type: protocol.KVUint8, Flags: 0x01})

	values := map[kvAddr]field.Field{
		{Group: 1, ID: 1}: &field.Float32{V: 21.5},
		{Group: 1, ID: 2}: func() field.Field { f := field.String128(); f.V = "sensor-a"; return f }(),
	}

	ch := &fakeChannel{handle: func(req protocol.Payload) (protocol.Payload, error) {
		switch r := req.(type) {
		case *protocol.GetKVRequest:
			entries, err := unpackGetKVResponseAddrsOnly(r.Raw())
			require.NoError(t, err)
			var out []byte
			for _, a := range entries {
				v := values[a]
				out = append(out, a.Group, a.ID, byte(metaTypeOf(dev, a)))
				out = append(out, v.Pack()...)
			}
			return protocol.NewGetKVResponse(out), nil
		case *protocol.SetKVRequest:
			results, err := unpackSetKVRequestAddrsOnly(r.Raw())
			require.NoError(t, err)
			var out []byte
			for _, a := range results {
				status := setKVOK
				if a.Group == 1 && a.ID == 3 {
					status = setKVReadOnly
				}
				out = append(out, a.Group, a.ID, byte(status))
			}
			return protocol.NewSetKVResponse(out), nil
		}
		return nil, nil
	}}

	s := NewSession(dev, ch, testOrigin, newFakeMetaStore(), nil)

	got, err := s.GetKV("temp_c", "name")
	require.NoError(t, err)
	require.InDelta(t, 21.5, got["temp_c"], 0.001)
	require.Equal(t, "sensor-a", got["name"])

	err = s.SetKV(map[string]interface{}{"temp_c": 22.0})
	require.NoError(t, err)

	err = s.SetKV(map[string]interface{}{"locked": 1})
	require.ErrorIs(t, err, exchange.ErrReadOnlyKey)

	_, err = s.GetKV("nonexistent")
	require.ErrorIs(t, err, exchange.ErrUnknownKey)
}

// unpackGetKVResponseAddrsOnly reads a get_kv request batch ({group, id}
// pairs) back to addresses, for test fixtures that need to answer by
// address rather than decode the full response shape.
func unpackGetKVResponseAddrsOnly(buf []byte) ([]kvAddr, error) {
	var out []kvAddr
	for len(buf) >= 2 {
		out = append(out, kvAddr{Group: buf[0], ID: buf[1]})
		buf = buf[2:]
	}
	return out, nil
}

func unpackSetKVRequestAddrsOnly(buf []byte) ([]kvAddr, error) {
	var out []kvAddr
	for len(buf) > 0 {
		g, id, dtype := buf[0], buf[1], protocol.KVType(buf[2])
		f, err := protocol.NewField(dtype)
		if err != nil {
			return nil, err
		}
		tail, err := f.Unpack(buf[3:])
		if err != nil {
			return nil, err
		}
		out = append(out, kvAddr{Group: g, ID: id})
		buf = tail
	}
	return out, nil
}

func metaTypeOf(dev *exchange.Device, a kvAddr) protocol.KVType {
	for _, meta := range dev.AllKVMeta() {
		if meta.Group == int(a.Group) && meta.ID == int(a.ID) {
			return meta.Type
		}
	}
	return protocol.KVUint8
}
