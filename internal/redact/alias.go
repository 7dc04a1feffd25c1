// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package redact projects events and workstreams through a disclosure
// profile. Sensitive values leaving the machine are replaced by stable keyed
// aliases so two packets from the same machine tell a consistent story
// without naming anything.
package redact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/elastic/shiplog/internal/schema"
)

// AliasFileName is the persisted alias cache inside a run directory. It maps
// plaintext to alias and therefore never leaves the machine: bundle
// manifests must not list it.
const AliasFileName = "redaction.aliases.json"

const (
	// aliasLength is the initial truncation of the HMAC hex digest.
	aliasLength = 12

	// aliasWiden is how much the truncation grows on a collision, until the
	// alias is unique within the cache.
	aliasWiden = 4
)

// Aliaser issues stable keyed aliases. First use of a (kind, value) pair
// records the mapping; later uses return the recorded alias, also across
// processes once the cache file is persisted.
type Aliaser struct {
	key   []byte
	path  string
	byVal map[string]map[string]string // kind -> plaintext -> alias
	taken map[string]map[string]string // kind -> alias -> plaintext
	dirty bool
}

// NewAliaser creates an aliaser for the given key, loading the cache file at
// path when it exists.
func NewAliaser(key, path string) (*Aliaser, error) {
	if key == "" {
		return nil, fmt.Errorf("redaction key is empty")
	}
	a := &Aliaser{
		key:   []byte(key),
		path:  path,
		byVal: map[string]map[string]string{},
		taken: map[string]map[string]string{},
	}
	if path != "" {
		if err := a.load(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Alias method returns the stable alias for a (kind, value) pair. The alias
// is a truncation of HMAC-SHA256(key, kind || NUL || value), widened until
// unique within the cache.
func (a *Aliaser) Alias(kind, value string) (string, error) {
	if alias, found := a.byVal[kind][value]; found {
		return alias, nil
	}

	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	digest := hex.EncodeToString(mac.Sum(nil))

	for n := aliasLength; n <= len(digest); n += aliasWiden {
		alias := digest[:n]
		owner, used := a.taken[kind][alias]
		if used && owner != value {
			continue
		}
		a.put(kind, value, alias)
		return alias, nil
	}
	return "", fmt.Errorf("alias collision unresolvable for kind %q", kind)
}

func (a *Aliaser) put(kind, value, alias string) {
	if a.byVal[kind] == nil {
		a.byVal[kind] = map[string]string{}
	}
	if a.taken[kind] == nil {
		a.taken[kind] = map[string]string{}
	}
	a.byVal[kind][value] = alias
	a.taken[kind][alias] = value
	a.dirty = true
}

func (a *Aliaser) keyDigest() string {
	digest := sha256.Sum256(a.key)
	return hex.EncodeToString(digest[:8])
}

func (a *Aliaser) load() error {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't read alias cache: %w", err)
	}

	var file schema.AliasCacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("can't parse alias cache (%s): %w", a.path, err)
	}
	if file.Version != schema.CurrentAliasCacheVersion {
		return fmt.Errorf("unsupported alias cache version %d (%s)", file.Version, a.path)
	}
	if file.KeyDigest != a.keyDigest() {
		// Aliases from another key: start fresh rather than mixing keys.
		return nil
	}
	for kind, entries := range file.Map {
		for value, alias := range entries {
			a.put(kind, value, alias)
		}
	}
	a.dirty = false
	return nil
}

// Persist method writes the cache file if any alias was added during the
// pass. Aliases loaded from a cache made with the same key are kept and only
// appended to; a cache made with another key is discarded at load and
// replaced here.
func (a *Aliaser) Persist() error {
	if a == nil || a.path == "" || !a.dirty {
		return nil
	}
	file := schema.AliasCacheFile{
		Version:   schema.CurrentAliasCacheVersion,
		KeyDigest: a.keyDigest(),
		Map:       a.byVal,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("can't marshal alias cache: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(a.path, data, 0o600); err != nil {
		return fmt.Errorf("can't write alias cache: %w", err)
	}
	a.dirty = false
	return nil
}
