// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"testing"

	"github.com/sapphire-mesh/sapphire/pkg/field"
	"github.com/stretchr/testify/require"
)

func TestDeviceCommandEchoRoundTrip(t *testing.T) {
	req := NewEchoRequest("ping")
	buf := DeviceCommand.Encode(req)

	decoded, err := DeviceCommand.Decode(buf)
	require.NoError(t, err)

	echo, ok := decoded.(*EchoRequest)
	require.True(t, ok)
	require.Equal(t, "ping", echo.Payload())
}

func TestDeviceCommandResponseEchoRoundTrip(t *testing.T) {
	resp := NewEchoResponse("pong")
	buf := DeviceCommandResponse.Encode(resp)

	decoded, err := DeviceCommandResponse.Decode(buf)
	require.NoError(t, err)
	echo := decoded.(*EchoResponse)
	require.Equal(t, "pong", echo.Payload())
}

func TestDecodeUnknownMsgTypeIsHardError(t *testing.T) {
	buf := []byte{0xff, 0xff, 1, 2, 3}
	_, err := DeviceCommand.Decode(buf)
	require.Error(t, err)
}

func TestGatewayServicesU8Format(t *testing.T) {
	buf := GatewayServices.Encode(NewGetNetworkTime())
	require.Len(t, buf, 1) // u8 msg_type, zero-length body

	decoded, err := GatewayServices.Decode(buf)
	require.NoError(t, err)
	_, ok := decoded.(*GetNetworkTime)
	require.True(t, ok)
}

func TestFileWriteRoundTrip(t *testing.T) {
	data := []byte("some file chunk")
	req := NewFileWriteRequest(7, 512, data)
	buf := DeviceCommand.Encode(req)

	decoded, err := DeviceCommand.Decode(buf)
	require.NoError(t, err)
	fw := decoded.(*FileWriteRequest)
	require.Equal(t, data, fw.Body().Get("data").(*field.Binary).V)
	require.Equal(t, uint32(7), fw.Body().Get("file_id").(*field.Uint32).V)
}

func TestNotificationRoundTrip(t *testing.T) {
	orig := NewNotification()
	orig.body.Get("device_id").(*field.Uint64).V = 42
	orig.body.Get("data_type").(*field.Uint8).V = uint8(KVUint32)
	orig.body.Get("data").(*field.Binary).V = (&field.Uint32{V: 99}).Pack()

	fresh := NewNotification()
	require.NoError(t, fresh.Unpack(orig.Pack()))
	require.Equal(t, uint64(42), fresh.DeviceID())
	require.Equal(t, KVUint32, fresh.DataType())
}
