// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package automaton

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
)

func TestFuncActionRunsPreActionPostInOrder(t *testing.T) {
	var order []string
	a := &FuncAction{
		PreFn:    func(exchange.Event) { order = append(order, "pre") },
		ActionFn: func(exchange.Event) { order = append(order, "action") },
		PostFn:   func(exchange.Event) { order = append(order, "post") },
	}

	require.NoError(t, a.Init())
	require.False(t, a.Running())

	a.Run(exchange.Event{})

	require.Equal(t, []string{"pre", "action", "post"}, order)
	require.False(t, a.Running(), "Running must be false again once Run returns")
}

func TestFuncActionInitPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	a := &FuncAction{InitFn: func() error { return boom }}
	require.Equal(t, boom, a.Init())
}

func TestTargetActionSkipsOnEmptyQuery(t *testing.T) {
	registry := exchange.New("automaton-test")
	var calls int32

	a := &TargetAction{
		Registry: registry,
		Targets:  exchange.Query{Match: map[string]interface{}{"kind": "nonexistent"}},
		ActionFn: func(exchange.Event, *exchange.Object) { atomic.AddInt32(&calls, 1) },
	}

	a.Run(exchange.Event{})
	require.Zero(t, atomic.LoadInt32(&calls))
	require.False(t, a.Running())
}

func TestTargetActionRunsOncePerMatchedObject(t *testing.T) {
	registry := exchange.New("automaton-test")
	for i := 0; i < 3; i++ {
		obj := exchange.NewObject("", "automaton-test", "devices", map[string]interface{}{"kind": "gateway"})
		require.NoError(t, registry.Publish(obj))
	}

	var seen []string
	a := &TargetAction{
		Registry: registry,
		Targets:  exchange.Query{Match: map[string]interface{}{"kind": "gateway"}},
		ActionFn: func(_ exchange.Event, target *exchange.Object) {
			seen = append(seen, target.ObjectID)
		},
	}

	a.Run(exchange.Event{})
	require.Len(t, seen, 3)
}
