// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kvmetacache persists the mapping from a firmware image's
// fwinfo-hash to its raw KV-meta bytes, so a fleet of identically-flashed
// devices only downloads kvmeta once per firmware image (§4.D).
package kvmetacache

import (
	"context"
	"time"

	"github.com/sapphire-mesh/sapphire/pkg/log"
)

// queryHooks satisfies the sqlhooks.Hooks interface, logging every query
// at debug level the way the rest of the stack's sqlite access does.
type queryHooks struct{}

func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("kvmetacache: %s %q", query, args)
	return context.WithValue(ctx, hookTimerKey{}, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(hookTimerKey{}).(time.Time); ok {
		log.Debugf("kvmetacache: took %s", time.Since(begin))
	}
	return ctx, nil
}

type hookTimerKey struct{}
