// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rdg

import "context"

// Pool bounds the number of concurrent RDG client sockets a process may
// have open at once (§4.C, §5: capped at 4, excess callers queue).
type Pool struct {
	slots chan struct{}
}

// DefaultPoolSize is the module-wide cap used when no explicit size is
// configured.
const DefaultPoolSize = 4

// NewPool creates a pool allowing up to size concurrent acquisitions.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (p *Pool) Release() {
	<-p.slots
}
