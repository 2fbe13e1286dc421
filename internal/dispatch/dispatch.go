// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the process-local signal bus that glues the
// object exchange to the automaton runtime and the long-poll queue (§4.J).
package dispatch

import (
	"sync"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
)

// Subscriber receives a batch of events fired on a signal.
type Subscriber func(events []exchange.Event)

// Bus is a local, in-process publish/subscribe component with exactly two
// signals (§4.J): RECEIVED_EVENT, fired after remote events are applied to
// the registry, and SENT_EVENT, fired after local events are broadcast.
// Delivery is synchronous in the firing goroutine.
type Bus struct {
	mu       sync.RWMutex
	received map[int]Subscriber
	sent     map[int]Subscriber
	nextID   int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		received: make(map[int]Subscriber),
		sent:     make(map[int]Subscriber),
	}
}

// Handle is an opaque subscription handle returned by Subscribe, passed
// back to Unsubscribe.
type Handle struct {
	signal string
	id     int
}

const (
	signalReceived = "RECEIVED_EVENT"
	signalSent     = "SENT_EVENT"
)

// SubscribeReceived registers fn against RECEIVED_EVENT.
func (b *Bus) SubscribeReceived(fn Subscriber) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.received[id] = fn
	return Handle{signal: signalReceived, id: id}
}

// SubscribeSent registers fn against SENT_EVENT.
func (b *Bus) SubscribeSent(fn Subscriber) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.sent[id] = fn
	return Handle{signal: signalSent, id: id}
}

// Unsubscribe removes a previously registered subscriber, torn down on
// shutdown per §4.J.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch h.signal {
	case signalReceived:
		delete(b.received, h.id)
	case signalSent:
		delete(b.sent, h.id)
	}
}

// FireReceived delivers events to every RECEIVED_EVENT subscriber,
// synchronously, in the firing goroutine. It satisfies
// exchange.Dispatcher.
func (b *Bus) FireReceived(events []exchange.Event) {
	b.fire(b.subscribersOf(signalReceived), events)
}

// FireSent delivers events to every SENT_EVENT subscriber. It satisfies
// exchange.Dispatcher.
func (b *Bus) FireSent(events []exchange.Event) {
	b.fire(b.subscribersOf(signalSent), events)
}

func (b *Bus) subscribersOf(signal string) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var m map[int]Subscriber
	switch signal {
	case signalReceived:
		m = b.received
	case signalSent:
		m = b.sent
	}
	out := make([]Subscriber, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func (b *Bus) fire(subs []Subscriber, events []exchange.Event) {
	if len(events) == 0 {
		return
	}
	for _, fn := range subs {
		fn(events)
	}
}
