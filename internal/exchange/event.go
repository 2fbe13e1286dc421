// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exchange

import "time"

// Event is a per-attribute change record (§3). Across the wire only the
// primitive fields travel; Object is populated for local consumers so they
// can read the current state without a second lookup.
type Event struct {
	ObjectID string      `json:"object_id"`
	OriginID string      `json:"origin_id"`
	Key      string      `json:"key"`
	Value    interface{} `json:"value"`
	Time     time.Time   `json:"timestamp"`

	Object *Object `json:"-"`
}

// Private reports whether the event's key is excluded from the long-poll
// event bus (§3: attribute keys beginning with "_" are private).
func (e Event) Private() bool {
	return len(e.Key) > 0 && e.Key[0] == '_'
}
