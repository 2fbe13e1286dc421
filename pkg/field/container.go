// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package field

import "fmt"

// Struct is an ordered sequence of named child fields. Its packed size is
// the sum of its children's sizes; unpacking feeds each child the
// unconsumed tail left by the previous one, in declared order.
type Struct struct {
	Fields []Named
}

func (s *Struct) Size() int {
	n := 0
	for _, f := range s.Fields {
		n += f.Field.Size()
	}
	return n
}

func (s *Struct) Pack() []byte {
	buf := make([]byte, 0, s.Size())
	for _, f := range s.Fields {
		buf = append(buf, f.Field.Pack()...)
	}
	return buf
}

func (s *Struct) Unpack(buf []byte) ([]byte, error) {
	for _, f := range s.Fields {
		var err error
		buf, err = f.Field.Unpack(buf)
		if err != nil {
			return buf, fmt.Errorf("field: struct member %q: %w", f.Name, err)
		}
	}
	return buf, nil
}

// Get returns the field registered under name, or nil if there is none.
func (s *Struct) Get(name string) Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Field
		}
	}
	return nil
}

// ElementFactory builds a fresh, zero-valued element Field for an Array to
// unpack into. Each call must return a distinct instance.
type ElementFactory func() Field

// Array is a homogeneous sequence of a given field kind. If N >= 0 it holds
// exactly N elements; if N < 0 (unknown element count) Unpack consumes the
// buffer to exhaustion, decoding one element per iteration until no bytes
// remain.
type Array struct {
	New      ElementFactory
	N        int
	Elements []Field
}

func (a *Array) Size() int {
	n := 0
	for _, e := range a.Elements {
		n += e.Size()
	}
	return n
}

func (a *Array) Pack() []byte {
	buf := make([]byte, 0, a.Size())
	for _, e := range a.Elements {
		buf = append(buf, e.Pack()...)
	}
	return buf
}

func (a *Array) Unpack(buf []byte) ([]byte, error) {
	a.Elements = a.Elements[:0]
	if a.N >= 0 {
		for i := 0; i < a.N; i++ {
			el := a.New()
			var err error
			buf, err = el.Unpack(buf)
			if err != nil {
				return buf, fmt.Errorf("field: array element %d: %w", i, err)
			}
			a.Elements = append(a.Elements, el)
		}
		return buf, nil
	}

	// Unknown count: consume to exhaustion, one element per iteration.
	for len(buf) > 0 {
		el := a.New()
		before := len(buf)
		var err error
		buf, err = el.Unpack(buf)
		if err != nil {
			return buf, fmt.Errorf("field: array element %d: %w", len(a.Elements), err)
		}
		if len(buf) >= before {
			// Guard against a zero-size element kind looping forever.
			return buf, fmt.Errorf("field: array element consumed no bytes, aborting to avoid infinite loop")
		}
		a.Elements = append(a.Elements, el)
	}
	return buf, nil
}
