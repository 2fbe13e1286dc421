// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package longpoll implements the per-HTTP-session event queue (§4.L): a
// bounded FIFO fed by the dispatcher, drained by a blocking read with a
// 60-second first-event timeout.
package longpoll

import (
	"context"
	"sync"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
)

// Capacity is the queue's bound (§4.L: "cap 512").
const Capacity = 512

// ReadTimeout is how long Read waits for the first event before returning
// empty-handed (§4.L: "block up to 60 s for the first event").
const ReadTimeout = 60 * time.Second

// Queue is one HTTP session's event backlog. The oldest element is
// dropped once the queue is full (§4.L).
type Queue struct {
	mu     sync.Mutex
	buf    []exchange.Event
	notify chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// enqueue appends ev, dropping the oldest element first if the queue is
// already at Capacity. Private events (§3: keys starting with "_") never
// reach the queue.
func (q *Queue) enqueue(ev exchange.Event) {
	if ev.Private() {
		return
	}

	q.mu.Lock()
	if len(q.buf) >= Capacity {
		q.buf = q.buf[1:]
	}
	q.buf = append(q.buf, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Read blocks up to ReadTimeout for the first event to arrive, then drains
// whatever has accumulated without waiting further (§4.L: "then drain the
// queue opportunistically"). It returns nil if ctx is done or the timeout
// elapses with nothing to deliver.
func (q *Queue) Read(ctx context.Context) []exchange.Event {
	if drained := q.drain(); len(drained) > 0 {
		return drained
	}

	timer := time.NewTimer(ReadTimeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if drained := q.drain(); len(drained) > 0 {
				return drained
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (q *Queue) drain() []exchange.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}
