// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// Transport is the outbound half of the exchange, implemented by
// internal/transport's publisher. It is an interface here so the registry
// never imports the broker client directly (§4.I).
type Transport interface {
	Publish(object map[string]interface{}) error
	SendEvents(events []Event) error
	Delete(objectID string) error
}

// Dispatcher is the local signal bus (§4.J). The registry fires
// RECEIVED_EVENT after applying inbound events and SENT_EVENT after
// broadcasting local ones, always outside the registry lock.
type Dispatcher interface {
	FireReceived(events []Event)
	FireSent(events []Event)
}

// Query selects objects from the registry (§4.H query()). An empty Query
// matches nothing unless All is set; filters combine with AND semantics.
type Query struct {
	// All, when true, skips the Match filter and the empty-query rule;
	// Contains and Expr still apply.
	All bool
	// Match requires stringified equality on every listed attribute.
	Match map[string]interface{}
	// Contains requires the listed attribute keys to be present.
	Contains []string
	// Expr, if set, is an arbitrary predicate over the object's attrs.
	Expr func(attrs map[string]interface{}) bool
}

// Registry is the process-wide object map (§4.H). Mutation is serialized
// behind mu; event delivery to the dispatcher always happens after mu is
// released, per the two-phase discipline documented in §5.
type Registry struct {
	mu      sync.Mutex
	origin  string
	objects map[string]*Object

	transport  Transport
	dispatcher Dispatcher
}

// New creates an empty registry for the given local origin id.
func New(origin string) *Registry {
	return &Registry{
		origin:  origin,
		objects: make(map[string]*Object),
	}
}

// Origin returns the process-local origin id.
func (r *Registry) Origin() string { return r.origin }

// SetTransport installs the broker-facing transport used to broadcast
// mutations. Safe to call once at startup before any traffic flows.
func (r *Registry) SetTransport(t Transport) { r.transport = t }

// SetDispatcher installs the local signal bus.
func (r *Registry) SetDispatcher(d Dispatcher) { r.dispatcher = d }

// Get returns the object with the given id, if present.
func (r *Registry) Get(objectID string) (*Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[objectID]
	return o, ok
}

// Query returns every object matching q (§4.H).
func (r *Registry) Query(q Query) []*Object {
	r.mu.Lock()
	snapshot := make([]*Object, 0, len(r.objects))
	for _, o := range r.objects {
		snapshot = append(snapshot, o)
	}
	r.mu.Unlock()

	var out []*Object
	for _, o := range snapshot {
		if !matches(o, q) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matches(o *Object, q Query) bool {
	attrs := o.Attrs()
	if !q.All {
		for k, v := range q.Match {
			av, ok := attrs[k]
			if !ok || fmt.Sprint(av) != fmt.Sprint(v) {
				return false
			}
		}
		if len(q.Match) == 0 && len(q.Contains) == 0 && q.Expr == nil {
			return false
		}
	}
	for _, k := range q.Contains {
		if _, ok := attrs[k]; !ok {
			return false
		}
	}
	if q.Expr != nil && !q.Expr(attrs) {
		return false
	}
	return true
}

// Publish inserts a locally-originated object into the registry and
// broadcasts it, then flushes any buffered events as one batch (§4.H).
// Only the object's originator may publish it.
func (r *Registry) Publish(o *Object) error {
	if o.OriginID != r.origin {
		return ErrNotOriginator
	}

	r.mu.Lock()
	r.objects[o.ObjectID] = o
	r.mu.Unlock()

	o.MarkPublished()
	if r.transport != nil {
		if err := r.transport.Publish(o.ToDict()); err != nil {
			log.Warnf("exchange: publish broadcast for %s failed: %v", o.ObjectID, err)
		}
	}

	events := o.FlushEvents()
	if len(events) == 0 {
		return nil
	}
	return r.SendEvents(events)
}

// Delete removes a locally-originated object and broadcasts its removal
// (§4.H, §8 invariant 4: non-originators are rejected).
func (r *Registry) Delete(o *Object) error {
	if o.OriginID != r.origin {
		return ErrNotOriginator
	}

	r.mu.Lock()
	delete(r.objects, o.ObjectID)
	r.mu.Unlock()

	if r.transport != nil {
		if err := r.transport.Delete(o.ObjectID); err != nil {
			log.Warnf("exchange: delete broadcast for %s failed: %v", o.ObjectID, err)
		}
	}
	return nil
}

// Update applies an incoming remote publish envelope: insert if unseen,
// otherwise overwrite attributes in place (§4.H update(), no events).
func (r *Registry) Update(data map[string]interface{}) error {
	objectID, _ := data["object_id"].(string)
	if objectID == "" {
		return fmt.Errorf("exchange: update: missing object_id")
	}
	originID, _ := data["origin_id"].(string)
	collection, _ := data["collection"].(string)
	updatedAt := parseUpdatedAt(data["updated_at"])

	attrs := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch k {
		case "object_id", "origin_id", "collection", "updated_at":
			continue
		default:
			attrs[k] = v
		}
	}

	r.mu.Lock()
	o, ok := r.objects[objectID]
	if !ok {
		o = NewObject(objectID, originID, collection, nil)
		r.objects[objectID] = o
	}
	r.mu.Unlock()

	o.ApplyRemote(attrs, updatedAt)
	return nil
}

func parseUpdatedAt(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// ReceiveEvents applies each event to its object under the registry lock,
// then delivers them to the dispatcher after releasing it (§4.H, §5: "the
// two-phase discipline prevents subscribers from observing a half-applied
// batch").
func (r *Registry) ReceiveEvents(events []Event) {
	r.mu.Lock()
	for i := range events {
		e := &events[i]
		o, ok := r.objects[e.ObjectID]
		if !ok {
			continue
		}
		o.ApplyEvent(e.Key, e.Value, e.Time)
		e.Object = o
	}
	r.mu.Unlock()

	if r.dispatcher != nil {
		r.dispatcher.FireReceived(events)
	}
}

// SendEvents broadcasts events to the transport and fires SENT_EVENT
// locally (§4.H send_events()).
func (r *Registry) SendEvents(events []Event) error {
	var err error
	if r.transport != nil {
		err = r.transport.SendEvents(events)
	}
	if r.dispatcher != nil {
		r.dispatcher.FireSent(events)
	}
	return err
}

// PublishObjects republishes every locally-originated object, used to
// answer an inbound request_objects bootstrap message (§4.I).
func (r *Registry) PublishObjects() {
	r.mu.Lock()
	mine := make([]*Object, 0)
	for _, o := range r.objects {
		if o.OriginID == r.origin {
			mine = append(mine, o)
		}
	}
	r.mu.Unlock()

	for _, o := range mine {
		if r.transport != nil {
			if err := r.transport.Publish(o.ToDict()); err != nil {
				log.Warnf("exchange: republish %s failed: %v", o.ObjectID, err)
			}
		}
	}
}

// ApplyDelete removes an object from the local map in response to an
// inbound delete envelope (§4.I). Unlike Delete, it performs no originator
// check: the deleting process already validated that before broadcasting.
func (r *Registry) ApplyDelete(objectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, objectID)
}

// UnpublishObjects broadcasts a delete for every locally-originated object,
// used at shutdown (§3: "the process exits (implicit delete via
// unpublish_objects at shutdown)").
func (r *Registry) UnpublishObjects() {
	r.mu.Lock()
	mine := make([]string, 0)
	for id, o := range r.objects {
		if o.OriginID == r.origin {
			mine = append(mine, id)
		}
	}
	r.mu.Unlock()

	for _, id := range mine {
		if r.transport != nil {
			if err := r.transport.Delete(id); err != nil {
				log.Warnf("exchange: unpublish %s failed: %v", id, err)
			}
		}
	}
}
