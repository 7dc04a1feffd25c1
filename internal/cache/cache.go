// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package cache provides a TTL key/value store for source API responses,
// backed by a single SQLite file. A miss or an expired entry never changes
// correctness, only how many requests the adapters issue.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/elastic/shiplog/internal/logger"
)

// DefaultTTL applies when Put is called with a zero TTL.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a TTL key/value store. The zero value (nil) is a valid cache that
// always misses. Write access is serialized; the DB is opened once per run.
type Cache struct {
	db    *sql.DB
	clock func() time.Time

	mu sync.Mutex
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);`

// Open function opens or creates the cache DB at the given path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("can't open cache DB (path: %s): %w", path, err)
	}
	// Serialized writes: one connection, guarded by the cache mutex.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("can't initialize cache schema: %w", err)
	}
	return &Cache{db: db, clock: time.Now}, nil
}

// OpenOrNil function opens the cache and degrades to a nil cache on failure.
// Ingestion works without a cache, just slower.
func OpenOrNil(path string) *Cache {
	c, err := Open(path)
	if err != nil {
		logger.Warnf("Response cache unavailable, continuing without it: %v", err)
		return nil
	}
	return c
}

// Key function builds a stable cache key from an endpoint and its parameters.
// Parameters are sorted by name so equivalent calls share an entry.
func Key(endpoint string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(endpoint)
	for _, name := range names {
		b.WriteByte('?')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}

// Get method returns the cached value for the key, or ErrMiss when the key is
// absent or expired.
func (c *Cache) Get(key string) ([]byte, error) {
	if c == nil {
		return nil, ErrMiss
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var value []byte
	var expiresAt int64
	err := c.db.QueryRow(`SELECT value, expires_at FROM entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("can't read cache entry: %w", err)
	}
	if c.clock().Unix() >= expiresAt {
		return nil, ErrMiss
	}
	return value, nil
}

// Put method stores the value under the key with the given TTL.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock().Add(ttl).Unix()
	_, err := c.db.Exec(`INSERT INTO entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("can't write cache entry: %w", err)
	}
	return nil
}

// Close method closes the underlying DB.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}
