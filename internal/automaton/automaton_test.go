// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package automaton

import (
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/require"

	"github.com/sapphire-mesh/sapphire/internal/dispatch"
	"github.com/sapphire-mesh/sapphire/internal/exchange"
)

// countingAction records how many times it ran, and how many of those
// overlapped another still-running invocation.
type countingAction struct {
	runState
	mu       sync.Mutex
	runs     int
	overlaps int
	block    chan struct{}
}

func (a *countingAction) Init() error { return nil }

func (a *countingAction) Run(exchange.Event) {
	a.mu.Lock()
	a.runs++
	a.mu.Unlock()

	a.set(true)
	if a.block != nil {
		<-a.block
	}
	a.set(false)
}

func (a *countingAction) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

func TestRuleRunsActionsOnFirstMatchingTriggerOnly(t *testing.T) {
	trig1, err := NewAttributeEqualityTrigger(nil, nil, "status", "online")
	require.NoError(t, err)
	trig2, err := NewAttributeEqualityTrigger(nil, nil, "status", "online")
	require.NoError(t, err)

	act := &countingAction{}
	rule := NewRule("double-trigger", []Trigger{trig1, trig2}, []Action{act})
	require.NoError(t, rule.setup(nil, func(exchange.Event) {}))

	rule.receive(exchange.Event{Key: "status", Value: "online"})

	require.Eventually(t, func() bool { return act.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, act.count(), "only the first matching trigger should run the rule's actions")
}

func TestRuleSkipsActionAlreadyRunning(t *testing.T) {
	trig, err := NewAttributeEqualityTrigger(nil, nil, "status", "online")
	require.NoError(t, err)

	act := &countingAction{block: make(chan struct{})}
	rule := NewRule("busy-action", []Trigger{trig}, []Action{act})
	require.NoError(t, rule.setup(nil, func(exchange.Event) {}))

	rule.receive(exchange.Event{Key: "status", Value: "online"})
	require.Eventually(t, func() bool { return act.Running() }, time.Second, time.Millisecond)

	rule.receive(exchange.Event{Key: "status", Value: "online"})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, act.count(), "a still-running action must not be started again")

	close(act.block)
	require.Eventually(t, func() bool { return !act.Running() }, time.Second, time.Millisecond)
}

func TestRulePausedIgnoresEvents(t *testing.T) {
	trig, err := NewAttributeEqualityTrigger(nil, nil, "status", "online")
	require.NoError(t, err)

	act := &countingAction{}
	rule := NewRule("paused", []Trigger{trig}, []Action{act})
	require.NoError(t, rule.setup(nil, func(exchange.Event) {}))
	rule.pause()

	rule.receive(exchange.Event{Key: "status", Value: "online"})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, act.count())
}

func TestRuleEvalPanicIsSwallowed(t *testing.T) {
	panicking := panicTrigger{}
	act := &countingAction{}
	rule := NewRule("panicky", []Trigger{panicking}, []Action{act})
	require.NoError(t, rule.setup(nil, func(exchange.Event) {}))

	require.NotPanics(t, func() {
		rule.receive(exchange.Event{Key: "whatever"})
	})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, act.count())
}

type panicTrigger struct{}

func (panicTrigger) init(gocron.Scheduler, func(exchange.Event)) error { return nil }
func (panicTrigger) eval(exchange.Event) bool                          { panic("boom") }

func TestEngineDeliversOnlyReceivedEventsToRules(t *testing.T) {
	bus := dispatch.New()
	trig, err := NewAttributeEqualityTrigger(nil, nil, "status", "online")
	require.NoError(t, err)

	act := &countingAction{}
	rule := NewRule("engine-rule", []Trigger{trig}, []Action{act})

	eng := New(bus, []*Rule{rule})
	require.NoError(t, eng.Start())
	defer eng.Stop()

	bus.FireSent([]exchange.Event{{Key: "status", Value: "online"}})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, act.count(), "the automaton must not react to locally-sent events")

	bus.FireReceived([]exchange.Event{{Key: "status", Value: "online"}})
	require.Eventually(t, func() bool { return act.count() == 1 }, time.Second, time.Millisecond)
}
