// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package automaton

import (
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/require"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
)

func TestAttributeEqualityTriggerMatchesExactly(t *testing.T) {
	trig, err := NewAttributeEqualityTrigger(nil, nil, "device_status", "offline")
	require.NoError(t, err)

	require.True(t, trig.eval(exchange.Event{Key: "device_status", Value: "offline"}))
	require.False(t, trig.eval(exchange.Event{Key: "device_status", Value: "online"}))
	require.False(t, trig.eval(exchange.Event{Key: "other_key", Value: "offline"}))
}

func TestConditionTriggerEvaluatesExpression(t *testing.T) {
	trig, err := NewConditionTrigger(nil, nil, `key == "temperature" && value > 90`)
	require.NoError(t, err)

	require.True(t, trig.eval(exchange.Event{Key: "temperature", Value: 95}))
	require.False(t, trig.eval(exchange.Event{Key: "temperature", Value: 50}))
}

func TestConditionTriggerRejectsCompileError(t *testing.T) {
	_, err := NewConditionTrigger(nil, nil, `key ===`)
	require.Error(t, err)
}

func TestConditionTriggerSourceQueryFiltersByObjectID(t *testing.T) {
	registry := exchange.New("automaton-test")
	obj := exchange.NewObject("", "automaton-test", "devices", map[string]interface{}{"kind": "gateway"})
	require.NoError(t, registry.Publish(obj))

	query := exchange.Query{Match: map[string]interface{}{"kind": "gateway"}}
	trig, err := NewConditionTrigger(registry, &query, "true")
	require.NoError(t, err)

	require.True(t, trig.eval(exchange.Event{ObjectID: obj.ObjectID}))
	require.False(t, trig.eval(exchange.Event{ObjectID: "not-in-the-query"}))
}

func TestConditionTriggerNeverMatchesAnotherTriggersTick(t *testing.T) {
	trig, err := NewConditionTrigger(nil, nil, "true")
	require.NoError(t, err)

	require.False(t, trig.eval(exchange.Event{Key: tickKeyPrefix + "some-other-trigger"}))
}

func TestIntervalTriggerOnlyMatchesItsOwnTick(t *testing.T) {
	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	defer sched.Shutdown()

	a := &IntervalTrigger{Interval: time.Hour}
	b := &IntervalTrigger{Interval: time.Hour}

	require.NoError(t, a.init(sched, func(exchange.Event) {}))
	require.NoError(t, b.init(sched, func(exchange.Event) {}))

	require.True(t, a.eval(exchange.Event{Key: a.tickKey}))
	require.False(t, a.eval(exchange.Event{Key: b.tickKey}))
	require.False(t, b.eval(exchange.Event{Key: a.tickKey}))
}
