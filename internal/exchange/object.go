// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package exchange implements the process-local object registry: the
// replicated key/value object map, its per-attribute event stream, and the
// locking discipline that keeps the two consistent (§4.H, §5).
package exchange

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotOriginator is returned when a non-originator attempts to add a new
// attribute key or delete an object (§3, §7: "Not-originator").
var ErrNotOriginator = errors.New("exchange: not originator")

// Object is the unit of replicated state (§3). Attribute values are the
// JSON type lattice (null, bool, number, string, list, map), represented as
// plain interface{} the way encoding/json already decodes them -- there is
// no need for a hand-rolled tagged union on top of what the standard
// library gives us for free.
type Object struct {
	mu sync.Mutex

	ObjectID   string
	OriginID   string
	Collection string
	UpdatedAt  time.Time

	attrs     map[string]interface{}
	pending   []Event
	published bool
}

// NewObject creates a local object owned by originID. object_id defaults to
// a random 128-bit id when objectID is empty.
func NewObject(objectID, originID, collection string, attrs map[string]interface{}) *Object {
	if objectID == "" {
		objectID = uuid.NewString()
	}
	if attrs == nil {
		attrs = make(map[string]interface{})
	}
	return &Object{
		ObjectID:   objectID,
		OriginID:   originID,
		Collection: collection,
		UpdatedAt:  time.Now().UTC(),
		attrs:      attrs,
	}
}

// Get returns the current value of key and whether it is present.
func (o *Object) Get(key string) (interface{}, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.attrs[key]
	return v, ok
}

// Attrs returns a shallow copy of the attribute map, safe for the caller to
// range over without holding the object's lock.
func (o *Object) Attrs() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make(map[string]interface{}, len(o.attrs))
	for k, v := range o.attrs {
		cp[k] = v
	}
	return cp
}

// PublicAttrs is Attrs filtered to drop keys beginning with "_" (§3:
// private attributes are excluded from the event bus toward long-poll
// consumers).
func (o *Object) PublicAttrs() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make(map[string]interface{}, len(o.attrs))
	for k, v := range o.attrs {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		cp[k] = v
	}
	return cp
}

// Set assigns key = value as selfOrigin. A non-originator may only update
// an attribute that already exists (§3 invariant); an originator may also
// introduce new keys. The value is buffered as an Event, flushed on the
// next Publish.
func (o *Object) Set(selfOrigin, key string, value interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, exists := o.attrs[key]
	if !exists && o.OriginID != selfOrigin {
		return ErrNotOriginator
	}

	o.attrs[key] = value
	o.UpdatedAt = time.Now().UTC()
	o.pending = append(o.pending, Event{
		ObjectID: o.ObjectID,
		OriginID: selfOrigin,
		Key:      key,
		Value:    value,
		Time:     o.UpdatedAt,
		Object:   o,
	})
	return nil
}

// FlushEvents returns and clears the object's buffered events (§3: "Events
// are buffered on the object until publish() is called, which flushes them
// as a batch").
func (o *Object) FlushEvents() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	events := o.pending
	o.pending = nil
	return events
}

// ApplyRemote overwrites attrs in place from an incoming publish envelope,
// without emitting events (§4.H update()).
func (o *Object) ApplyRemote(attrs map[string]interface{}, updatedAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range attrs {
		o.attrs[k] = v
	}
	if updatedAt.After(o.UpdatedAt) {
		o.UpdatedAt = updatedAt
	}
}

// ApplyEvent sets a single attribute from an inbound event, used by
// receive_events under the registry lock (§4.H: "apply each event's value
// to its object by object_id").
func (o *Object) ApplyEvent(key string, value interface{}, ts time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attrs[key] = value
	if ts.After(o.UpdatedAt) {
		o.UpdatedAt = ts
	}
}

// ToDict renders the object as the wire dict used by the publish envelope
// (§6): object_id, origin_id, updated_at, collection, plus attributes.
func (o *Object) ToDict() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := make(map[string]interface{}, len(o.attrs)+4)
	for k, v := range o.attrs {
		d[k] = v
	}
	d["object_id"] = o.ObjectID
	d["origin_id"] = o.OriginID
	d["collection"] = o.Collection
	d["updated_at"] = o.UpdatedAt.Format(time.RFC3339Nano)
	return d
}

// MarkPublished records that the object has been broadcast to the broker
// at least once (§3: "published ⇔ ... has been broadcast ... at least
// once since publication").
func (o *Object) MarkPublished() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = true
}

// Published reports whether MarkPublished has been called since creation
// (or since the object was last re-created locally).
func (o *Object) Published() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.published
}
