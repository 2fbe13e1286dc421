// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kvmetacache

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	mattnsqlite3 "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
	"github.com/sapphire-mesh/sapphire/pkg/log"
)

//go:embed migrations/sqlite3/*.sql
var migrationFiles embed.FS

var driverRegisterOnce sync.Once

// Cache wraps a one-connection sqlite3 handle holding the fwinfo-hash →
// raw kvmeta table.
type Cache struct {
	db *sqlx.DB
}

// Open connects to path (creating it if necessary), applying any pending
// migrations. Matches the rest of the stack's convention of a single
// serialized sqlite connection (§5: "persistent KV-meta cache ... one
// connection per process; operations serialized").
func Open(path string) (*Cache, error) {
	driverRegisterOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&mattnsqlite3.SQLiteDriver{}, &queryHooks{}))
	})

	dsn := fmt.Sprintf("%s?_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3WithHooks", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvmetacache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB, path); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("kvmetacache: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("kvmetacache: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("kvmetacache: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("kvmetacache: migrate up: %w", err)
	}
	log.Infof("kvmetacache: ready at %s", path)
	return nil
}

// Close closes the underlying connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
