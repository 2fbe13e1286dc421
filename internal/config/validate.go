// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"

	"github.com/sapphire-mesh/sapphire/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks instance against schema, aborting the process on failure.
// Used once at startup against the raw config file before it is decoded.
func Validate(schema string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		log.Fatalf("%#v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		log.Fatal(err)
	}

	if err := sch.Validate(v); err != nil {
		log.Fatalf("%#v", err)
	}
}
