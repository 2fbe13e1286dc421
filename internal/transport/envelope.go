// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport carries the object exchange across processes over a
// single NATS subject (§4.I, §6).
package transport

import "encoding/json"

// Subject is the single broker channel every process publishes to and
// subscribes from.
const Subject = "sapphire_objects"

// Method names carried in the envelope's "method" field (§6).
const (
	MethodPublish        = "publish"
	MethodEvents         = "events"
	MethodDelete         = "delete"
	MethodRequestObjects = "request_objects"
)

// Envelope is the JSON message shape exchanged on Subject (§6).
type Envelope struct {
	Method   string          `json:"method"`
	OriginID string          `json:"origin_id"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func encode(method, origin string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Method: method, OriginID: origin, Data: raw})
}
