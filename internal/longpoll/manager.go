// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package longpoll

import (
	"sync"

	"github.com/sapphire-mesh/sapphire/internal/dispatch"
	"github.com/sapphire-mesh/sapphire/internal/exchange"
)

// Manager owns one Queue per HTTP session and fans every dispatcher event
// out to all of them (§4.L: "On each local event (sent or received),
// non-private events are enqueued").
type Manager struct {
	bus *dispatch.Bus

	mu     sync.Mutex
	queues map[string]*Queue

	receivedHandle dispatch.Handle
	sentHandle     dispatch.Handle
}

// NewManager registers with bus for both RECEIVED_EVENT and SENT_EVENT.
func NewManager(bus *dispatch.Bus) *Manager {
	m := &Manager{bus: bus, queues: make(map[string]*Queue)}
	m.receivedHandle = bus.SubscribeReceived(m.fanout)
	m.sentHandle = bus.SubscribeSent(m.fanout)
	return m
}

// Open returns the queue for sessionID, creating one if this is the first
// call for that session.
func (m *Manager) Open(sessionID string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[sessionID]; ok {
		return q
	}
	q := New()
	m.queues[sessionID] = q
	return q
}

// Close discards the queue for sessionID.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	delete(m.queues, sessionID)
	m.mu.Unlock()
}

// Shutdown unsubscribes from the dispatcher.
func (m *Manager) Shutdown() {
	m.bus.Unsubscribe(m.receivedHandle)
	m.bus.Unsubscribe(m.sentHandle)
}

func (m *Manager) fanout(events []exchange.Event) {
	m.mu.Lock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	for _, ev := range events {
		for _, q := range queues {
			q.enqueue(ev)
		}
	}
}
