// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kvmetacache

import (
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
)

var statementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Lookup is a Cache fronted by an in-memory LRU of recently seen firmware
// hashes, so a fleet of devices flashed with the same image only touches
// sqlite for the first scan (§4.D).
type Lookup struct {
	cache *Cache
	hot   *lru.Cache[string, []byte]
}

// NewLookup wraps cache with an LRU front layer holding up to capacity
// entries.
func NewLookup(cache *Cache, capacity int) (*Lookup, error) {
	if capacity <= 0 {
		capacity = 256
	}
	hot, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Lookup{cache: cache, hot: hot}, nil
}

// Get returns the raw kvmeta bytes cached under fwinfoHash, checking the
// in-memory layer before falling back to sqlite.
func (l *Lookup) Get(fwinfoHash string) ([]byte, bool, error) {
	if raw, ok := l.hot.Get(fwinfoHash); ok {
		return raw, true, nil
	}

	row := statementBuilder.
		Select("raw_meta").
		From("kv_meta_cache").
		Where(sq.Eq{"fwinfo_hash": fwinfoHash}).
		RunWith(l.cache.db).
		QueryRow()

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	l.hot.Add(fwinfoHash, raw)
	return raw, true, nil
}

// Put stores rawMeta under fwinfoHash, replacing any prior entry for the
// same hash (identical firmware images always report identical kvmeta).
func (l *Lookup) Put(fwinfoHash string, rawMeta []byte) error {
	_, err := statementBuilder.
		Replace("kv_meta_cache").
		Columns("fwinfo_hash", "raw_meta", "updated_at").
		Values(fwinfoHash, rawMeta, time.Now().UTC()).
		RunWith(l.cache.db).
		Exec()
	if err != nil {
		return err
	}
	l.hot.Add(fwinfoHash, rawMeta)
	return nil
}
