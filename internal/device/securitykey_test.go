// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSecurityKeyIsStablePerDevice(t *testing.T) {
	seed := []byte("deployment-secret")

	a1, err := DeriveSecurityKey(seed, 42)
	require.NoError(t, err)
	a2, err := DeriveSecurityKey(seed, 42)
	require.NoError(t, err)
	require.Equal(t, a1, a2, "the same seed and device id must always derive the same key")

	b, err := DeriveSecurityKey(seed, 43)
	require.NoError(t, err)
	require.NotEqual(t, a1, b, "distinct device ids must derive distinct keys")
}

func TestDeriveSecurityKeyVariesWithSeed(t *testing.T) {
	a, err := DeriveSecurityKey([]byte("seed-one"), 7)
	require.NoError(t, err)
	b, err := DeriveSecurityKey([]byte("seed-two"), 7)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
