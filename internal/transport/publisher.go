// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"time"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Broker is the subset of pkg/nats.Client the transport layer needs,
// narrowed to an interface so publisher/subscriber tests can substitute a
// fake in place of a live connection.
type Broker interface {
	Publish(subject string, data []byte) error
}

// ReconnectBackoff is how long the publisher waits before retrying a
// failed send (§4.I, §7: "Broker-disconnect: ... logs and sleeps 4 s, then
// reconnects").
const ReconnectBackoff = 4 * time.Second

// Publisher owns the outbound send queue and satisfies
// exchange.Transport, translating registry mutations into broker
// envelopes (§4.I).
type Publisher struct {
	broker Broker
	origin string
	queue  chan []byte
	stop   chan struct{}
	done   chan struct{}
}

// NewPublisher creates a publisher with a bounded outbound queue.
func NewPublisher(broker Broker, origin string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Publisher{
		broker: broker,
		origin: origin,
		queue:  make(chan []byte, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

var _ exchange.Transport = (*Publisher)(nil)

// Publish satisfies exchange.Transport.
func (p *Publisher) Publish(object map[string]interface{}) error {
	return p.enqueue(MethodPublish, object)
}

// SendEvents satisfies exchange.Transport.
func (p *Publisher) SendEvents(events []exchange.Event) error {
	if len(events) == 0 {
		return nil
	}
	return p.enqueue(MethodEvents, events)
}

// Delete satisfies exchange.Transport.
func (p *Publisher) Delete(objectID string) error {
	return p.enqueue(MethodDelete, map[string]string{"object_id": objectID})
}

// RequestObjects asks every other process to republish its full object
// set, sent once by the subscriber on connect (§4.I bootstrap catch-up).
func (p *Publisher) RequestObjects() error {
	return p.enqueue(MethodRequestObjects, nil)
}

func (p *Publisher) enqueue(method string, data interface{}) error {
	b, err := encode(method, p.origin, data)
	if err != nil {
		return err
	}
	select {
	case p.queue <- b:
		return nil
	case <-p.stop:
		return nil
	}
}

// Run drains the outbound queue until Stop is called, retrying a failed
// send every ReconnectBackoff until it succeeds (§4.I, §7). A message still
// being retried when Stop is called is dropped.
func (p *Publisher) Run() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.queue:
			p.sendWithRetry(msg)
		case <-p.stop:
			p.drain()
			return
		}
	}
}

func (p *Publisher) sendWithRetry(msg []byte) {
	for {
		if err := p.broker.Publish(Subject, msg); err != nil {
			log.Warnf("transport: publish failed, retrying in %s: %v", ReconnectBackoff, err)
			select {
			case <-time.After(ReconnectBackoff):
				continue
			case <-p.stop:
				return
			}
		}
		return
	}
}

// drain flushes any messages still queued at shutdown, so buffered sends
// are not lost until process exit (§7).
func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			if err := p.broker.Publish(Subject, msg); err != nil {
				log.Warnf("transport: drain publish failed: %v", err)
			}
		default:
			return
		}
	}
}

// Stop signals Run to drain the queue and return.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
}
