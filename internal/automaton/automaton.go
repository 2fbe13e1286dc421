// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package automaton implements the rule engine (§4.K): rules made of
// triggers and actions, evaluated against events delivered by the object
// exchange's dispatcher.
package automaton

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sapphire-mesh/sapphire/internal/dispatch"
	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Rule owns a set of triggers and actions, evaluated together on every
// event the engine delivers (§4.K).
type Rule struct {
	Name     string
	Triggers []Trigger
	Actions  []Action

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewRule builds a rule. At least one trigger is expected; a rule with no
// triggers simply never fires.
func NewRule(name string, triggers []Trigger, actions []Action) *Rule {
	return &Rule{Name: name, Triggers: triggers, Actions: actions}
}

// setup initializes actions first, then triggers, so that an interval
// trigger with run_now can immediately fire against already-initialized
// actions (§4.K: "actions first, then triggers").
func (r *Rule) setup(sched gocron.Scheduler, emit func(exchange.Event)) error {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	for _, a := range r.Actions {
		if err := a.Init(); err != nil {
			return fmt.Errorf("automaton: rule %q: action init: %w", r.Name, err)
		}
	}
	for _, t := range r.Triggers {
		if err := t.init(sched, emit); err != nil {
			return fmt.Errorf("automaton: rule %q: trigger init: %w", r.Name, err)
		}
	}
	return nil
}

func (r *Rule) pause() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// receive evaluates the rule's triggers, in declaration order, against
// ev. The first matching trigger runs every action, each guarded by its
// own "already running" flag, and no further triggers are tried (§4.K:
// "we match only one of the triggers"). A panicking or erroring trigger or
// action is logged and does not stop the rest of the engine.
func (r *Rule) receive(ev exchange.Event) {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return
	}

	r.mu.Lock()
	r.lastRun = time.Now().UTC()
	r.mu.Unlock()

	for _, trig := range r.Triggers {
		if !r.safeEval(trig, ev) {
			continue
		}

		log.Debugf("automaton: rule %q triggered", r.Name)
		for _, act := range r.Actions {
			if act.Running() {
				log.Debugf("automaton: rule %q: action already running, skipped", r.Name)
				continue
			}
			go r.safeRun(act, ev)
		}
		return
	}
}

func (r *Rule) safeEval(trig Trigger, ev exchange.Event) (hit bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("automaton: rule %q: trigger panicked: %v", r.Name, rec)
			hit = false
		}
	}()
	return trig.eval(ev)
}

func (r *Rule) safeRun(act Action, ev exchange.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("automaton: rule %q: action panicked: %v", r.Name, rec)
		}
	}()
	act.Run(ev)
}

// Engine drives a fixed set of rules against the object exchange's
// RECEIVED_EVENT signal (§4.K, §4.J): the automaton only reacts to
// remotely-originated changes arriving through the broker, not to its own
// process's locally-sent events.
type Engine struct {
	rules []*Rule
	bus   *dispatch.Bus
	sched gocron.Scheduler

	mu     sync.Mutex
	handle dispatch.Handle
	active bool
}

// New builds an Engine for the given rule set.
func New(bus *dispatch.Bus, rules []*Rule) *Engine {
	return &Engine{bus: bus, rules: rules}
}

// Start wires every rule's triggers into a fresh scheduler and subscribes
// to the dispatcher (§4.K: "start() calls each rule's _setup()").
func (e *Engine) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("automaton: create scheduler: %w", err)
	}
	e.sched = sched

	for _, r := range e.rules {
		if err := r.setup(e.sched, e.emit); err != nil {
			return err
		}
	}

	e.sched.Start()
	e.mu.Lock()
	e.handle = e.bus.SubscribeReceived(e.onReceived)
	e.active = true
	e.mu.Unlock()
	return nil
}

// Pause suspends every rule's evaluation without tearing down the
// scheduler or subscription (§4.K: "pause() suspends evaluation").
func (e *Engine) Pause() {
	for _, r := range e.rules {
		r.pause()
	}
}

// Stop pauses every rule, unsubscribes from the dispatcher, and shuts the
// scheduler down (§4.K: "stop() tears down").
func (e *Engine) Stop() error {
	e.Pause()

	e.mu.Lock()
	if e.active {
		e.bus.Unsubscribe(e.handle)
		e.active = false
	}
	e.mu.Unlock()

	if e.sched != nil {
		return e.sched.Shutdown()
	}
	return nil
}

func (e *Engine) onReceived(events []exchange.Event) {
	for _, ev := range events {
		e.dispatch(ev)
	}
}

// emit is the synthetic-event entry point interval triggers call; it
// delivers the tick event to every rule exactly like a real exchange
// event would be (§4.K).
func (e *Engine) emit(ev exchange.Event) {
	e.dispatch(ev)
}

func (e *Engine) dispatch(ev exchange.Event) {
	for _, r := range e.rules {
		r.receive(ev)
	}
}
