// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package automaton

import (
	"sync"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Action is one rule's unit of work, run once per matching trigger hit
// (§4.K). Running reports whether an invocation is still in flight, which
// the rule uses as the per-action "already running" guard.
type Action interface {
	Init() error
	Run(ev exchange.Event)
	Running() bool
}

// runState is the Running()/set pair both Action implementations share.
type runState struct {
	mu      sync.Mutex
	running bool
}

func (r *runState) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *runState) set(v bool) {
	r.mu.Lock()
	r.running = v
	r.mu.Unlock()
}

// FuncAction is a plain Action built from up to three callbacks, run in
// pre/action/post order (§4.K).
type FuncAction struct {
	runState

	InitFn   func() error
	PreFn    func(ev exchange.Event)
	ActionFn func(ev exchange.Event)
	PostFn   func(ev exchange.Event)
}

func (a *FuncAction) Init() error {
	if a.InitFn == nil {
		return nil
	}
	return a.InitFn()
}

func (a *FuncAction) Run(ev exchange.Event) {
	a.set(true)
	defer a.set(false)

	if a.PreFn != nil {
		a.PreFn(ev)
	}
	if a.ActionFn != nil {
		a.ActionFn(ev)
	}
	if a.PostFn != nil {
		a.PostFn(ev)
	}
}

// TargetAction wraps a per-object callback with a query run fresh on every
// firing; action runs once per matched object (§4.K: "TargetAction wraps
// an action with a query executed per firing"). A query that returns no
// objects is logged and treated as a no-op -- Running() never flips true.
type TargetAction struct {
	runState

	Registry *exchange.Registry
	Targets  exchange.Query

	InitFn   func() error
	PreFn    func(ev exchange.Event)
	ActionFn func(ev exchange.Event, target *exchange.Object)
	PostFn   func(ev exchange.Event)
}

func (a *TargetAction) Init() error {
	if a.InitFn == nil {
		return nil
	}
	return a.InitFn()
}

func (a *TargetAction) Run(ev exchange.Event) {
	targets := a.Registry.Query(a.Targets)
	if len(targets) == 0 {
		log.Infof("automaton: target action query returned no objects")
		return
	}

	a.set(true)
	defer a.set(false)

	if a.PreFn != nil {
		a.PreFn(ev)
	}
	for _, target := range targets {
		a.ActionFn(ev, target)
	}
	if a.PostFn != nil {
		a.PostFn(ev)
	}
}
