// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package automaton

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// tickKeyPrefix marks an exchange.Event as a synthetic event generated by
// an IntervalTrigger's own clock rather than a real object mutation, so
// every other trigger's eval() can cheaply reject it without inspecting
// the rest of the event (§4.K).
const tickKeyPrefix = "_automaton_tick:"

// Trigger decides whether a rule's actions should run for a given event
// (§4.K). init wires up anything the trigger needs before the engine
// starts delivering events -- for IntervalTrigger, the periodic job that
// injects its own synthetic event.
type Trigger interface {
	init(sched gocron.Scheduler, emit func(exchange.Event)) error
	eval(ev exchange.Event) bool
}

// ConditionTrigger is both of the "concrete kinds" spec.md names that
// react to real exchange events: a plain attribute-equality check
// (NewAttributeEqualityTrigger) and a general expr-lang boolean condition
// (NewConditionTrigger). Both compile once and run per event against an
// env built from the event and its object's current attributes.
type ConditionTrigger struct {
	registry    *exchange.Registry
	sourceQuery *exchange.Query
	program     *vm.Program

	expectedKey   string
	expectedValue interface{}
}

// NewConditionTrigger compiles expression once (expr-lang, must evaluate
// to bool) and, if sourceQuery is non-nil, first requires the event's
// object id be a member of that query's result set (§4.K: "first filters
// the event's object_id against the query").
func NewConditionTrigger(registry *exchange.Registry, sourceQuery *exchange.Query, expression string) (*ConditionTrigger, error) {
	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("automaton: compile trigger condition %q: %w", expression, err)
	}
	return &ConditionTrigger{registry: registry, sourceQuery: sourceQuery, program: program}, nil
}

// NewAttributeEqualityTrigger fires when an event's key and value equal
// the given name/value exactly.
func NewAttributeEqualityTrigger(registry *exchange.Registry, sourceQuery *exchange.Query, name string, value interface{}) (*ConditionTrigger, error) {
	program, err := expr.Compile("key == expectedKey && value == expectedValue", expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("automaton: compile attribute-equality trigger: %w", err)
	}
	return &ConditionTrigger{
		registry:      registry,
		sourceQuery:   sourceQuery,
		program:       program,
		expectedKey:   name,
		expectedValue: value,
	}, nil
}

func (t *ConditionTrigger) init(gocron.Scheduler, func(exchange.Event)) error { return nil }

func (t *ConditionTrigger) eval(ev exchange.Event) bool {
	if isTick(ev) {
		return false
	}
	if t.sourceQuery != nil && t.registry != nil {
		if !objectMatches(t.registry, *t.sourceQuery, ev.ObjectID) {
			return false
		}
	}

	env := map[string]interface{}{
		"key":           ev.Key,
		"value":         ev.Value,
		"object_id":     ev.ObjectID,
		"origin_id":     ev.OriginID,
		"expectedKey":   t.expectedKey,
		"expectedValue": t.expectedValue,
	}
	if ev.Object != nil {
		env["attrs"] = ev.Object.Attrs()
	}

	out, err := expr.Run(t.program, env)
	if err != nil {
		log.Warnf("automaton: trigger condition error: %v", err)
		return false
	}
	hit, _ := out.(bool)
	return hit
}

func objectMatches(registry *exchange.Registry, q exchange.Query, objectID string) bool {
	for _, o := range registry.Query(q) {
		if o.ObjectID == objectID {
			return true
		}
	}
	return false
}

func isTick(ev exchange.Event) bool {
	return len(ev.Key) >= len(tickKeyPrefix) && ev.Key[:len(tickKeyPrefix)] == tickKeyPrefix
}

// IntervalTrigger fires a synthetic local event at a fixed period, driven
// by the engine's gocron scheduler (§4.K: "an external scheduler fires a
// synthetic local event at configured periodicity"). RunNow starts the
// first tick immediately instead of waiting one full Interval; RunOnce
// limits the job to a single firing.
type IntervalTrigger struct {
	Interval time.Duration
	RunNow   bool
	RunOnce  bool

	tickKey string
}

func (t *IntervalTrigger) init(sched gocron.Scheduler, emit func(exchange.Event)) error {
	t.tickKey = tickKeyPrefix + uuid.NewString()

	var opts []gocron.JobOption
	if t.RunNow {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if t.RunOnce {
		opts = append(opts, gocron.WithLimitedRuns(1))
	}

	fire := func() {
		emit(exchange.Event{Key: t.tickKey, Time: time.Now().UTC()})
	}

	if _, err := sched.NewJob(gocron.DurationJob(t.Interval), gocron.NewTask(fire), opts...); err != nil {
		return fmt.Errorf("automaton: register interval trigger: %w", err)
	}
	return nil
}

func (t *IntervalTrigger) eval(ev exchange.Event) bool {
	return ev.Key == t.tickKey
}
