// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/exchange"
	natsclient "github.com/sapphire-mesh/sapphire/pkg/nats"
	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Exchange is the subset of *exchange.Registry the subscriber drives.
type Exchange interface {
	Update(data map[string]interface{}) error
	ReceiveEvents(events []exchange.Event)
	ApplyDelete(objectID string)
	PublishObjects()
}

// SubBroker is the subset of pkg/nats.Client the subscriber needs.
type SubBroker interface {
	Subscribe(subject string, handler natsclient.MessageHandler) error
}

// Subscriber receives broker envelopes and applies them to the local
// registry, with echo suppression and bootstrap catch-up (§4.I).
type Subscriber struct {
	origin    string
	reg       Exchange
	publisher *Publisher

	bootstrapping atomic.Bool
}

// NewSubscriber creates a subscriber for origin, applying decoded
// envelopes to reg and using publisher to emit the bootstrap
// request_objects message.
func NewSubscriber(origin string, reg Exchange, publisher *Publisher) *Subscriber {
	return &Subscriber{origin: origin, reg: reg, publisher: publisher}
}

// Start subscribes to Subject and, once subscribed, requests a catch-up
// republish from every other process (§4.I: "on connect, first emits
// request_objects"). The Bootstrapping flag is held until grace elapses,
// giving late-arriving republishes a chance to land before callers treat
// the registry as complete (§9 open question).
func (s *Subscriber) Start(broker SubBroker, grace time.Duration) error {
	if err := broker.Subscribe(Subject, s.onMessage); err != nil {
		return err
	}

	s.bootstrapping.Store(true)
	if err := s.publisher.RequestObjects(); err != nil {
		log.Warnf("transport: bootstrap request_objects failed: %v", err)
	}
	if grace <= 0 {
		grace = time.Second
	}
	go func() {
		time.Sleep(grace)
		s.bootstrapping.Store(false)
	}()
	return nil
}

// Bootstrapping reports whether the catch-up grace period is still in
// effect after a (re)connect.
func (s *Subscriber) Bootstrapping() bool {
	return s.bootstrapping.Load()
}

func (s *Subscriber) onMessage(_ string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warnf("transport: malformed envelope: %v", err)
		return
	}

	if env.OriginID == s.origin {
		return // echo suppression, §8 invariant 3
	}

	switch env.Method {
	case MethodPublish:
		var dict map[string]interface{}
		if err := json.Unmarshal(env.Data, &dict); err != nil {
			log.Warnf("transport: malformed publish payload: %v", err)
			return
		}
		if err := s.reg.Update(dict); err != nil {
			log.Warnf("transport: update failed: %v", err)
		}
	case MethodEvents:
		var events []exchange.Event
		if err := json.Unmarshal(env.Data, &events); err != nil {
			log.Warnf("transport: malformed events payload: %v", err)
			return
		}
		s.reg.ReceiveEvents(events)
	case MethodDelete:
		var body struct {
			ObjectID string `json:"object_id"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			log.Warnf("transport: malformed delete payload: %v", err)
			return
		}
		s.reg.ApplyDelete(body.ObjectID)
	case MethodRequestObjects:
		s.reg.PublishObjects()
	default:
		log.Warnf("transport: unknown method %q", env.Method)
	}
}
