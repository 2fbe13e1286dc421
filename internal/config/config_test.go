// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Keys = ProgramConfig{NotificationPort: 59999}
	Init("/does/not/exist.json")
	require.Equal(t, 59999, Keys.NotificationPort)
}

func TestInitOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "sapphire-config-*.json")
	require.NoError(t, err)
	_, err = f.WriteString(`{"notification-port": 12345, "nats": {"address": "nats://broker:4222"}}`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	Init(f.Name())
	require.Equal(t, 12345, Keys.NotificationPort)
	require.Equal(t, "nats://broker:4222", Keys.Nats.Address)
}
