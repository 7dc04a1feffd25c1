// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package workstream

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elastic/shiplog/internal/logger"
	"github.com/elastic/shiplog/internal/schema"
)

const (
	// CuratedFileName is the user-owned workstreams file. The tool reads it
	// but never writes it.
	CuratedFileName = "workstreams.yaml"

	// SuggestedFileName is the tool-generated suggestion, regenerated on
	// demand.
	SuggestedFileName = "workstreams.suggested.yaml"
)

// Origin says which file a resolution came from.
type Origin string

const (
	OriginCurated   Origin = "curated"
	OriginSuggested Origin = "suggested"
	OriginClustered Origin = "clustered"
)

// Store resolves and persists workstream files for a run directory.
type Store struct {
	Dir       string
	Clusterer Clusterer
	Clock     func() time.Time
}

// NewStore creates a store with the default repo clusterer.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, Clusterer: RepoClusterer{}, Clock: time.Now}
}

// Resolve method answers "what workstreams describe this run?".
// Precedence: curated file, then suggested file, then a fresh clustering
// whose result is persisted as the new suggestion. When regen is set the
// suggestion is always rebuilt from the events, but the curated file still
// wins for the returned result.
func (s *Store) Resolve(events []schema.EventEnvelope, regen bool) (schema.WorkstreamsFile, Origin, error) {
	if regen {
		if _, err := s.RegenerateSuggestion(events); err != nil {
			return schema.WorkstreamsFile{}, "", err
		}
	}

	curated, err := s.load(CuratedFileName)
	if err == nil {
		return curated, OriginCurated, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		// A curated file that exists but doesn't parse is user state we
		// must not paper over with a suggestion.
		return schema.WorkstreamsFile{}, "", fmt.Errorf("can't use curated workstreams: %w", err)
	}

	suggested, err := s.load(SuggestedFileName)
	if err == nil {
		return suggested, OriginSuggested, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("Suggested workstreams file is unreadable, regenerating: %v", err)
	}

	file, err := s.RegenerateSuggestion(events)
	if err != nil {
		return schema.WorkstreamsFile{}, "", err
	}
	return file, OriginClustered, nil
}

// RegenerateSuggestion method clusters the events and writes the suggestion
// file. The curated file is never touched.
func (s *Store) RegenerateSuggestion(events []schema.EventEnvelope) (schema.WorkstreamsFile, error) {
	clusterer := s.Clusterer
	if clusterer == nil {
		clusterer = RepoClusterer{}
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}

	file := NewSuggestion(clusterer, events, clock())
	if err := s.write(SuggestedFileName, file); err != nil {
		return schema.WorkstreamsFile{}, err
	}
	return file, nil
}

// WriteSuggestion method persists an already-built suggestion file, e.g.
// after summaries were drafted into it.
func (s *Store) WriteSuggestion(file schema.WorkstreamsFile) error {
	return s.write(SuggestedFileName, file)
}

func (s *Store) load(name string) (schema.WorkstreamsFile, error) {
	path := filepath.Join(s.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.WorkstreamsFile{}, err
	}

	var file schema.WorkstreamsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return schema.WorkstreamsFile{}, fmt.Errorf("can't parse %s: %w", path, err)
	}
	// Curated files are validated without a kind index: the user may
	// reference events from an older ledger and stats are theirs to own.
	if err := file.Validate(nil); err != nil {
		return schema.WorkstreamsFile{}, fmt.Errorf("%s violates invariants: %w", path, err)
	}
	return file, nil
}

func (s *Store) write(name string, file schema.WorkstreamsFile) error {
	if name == CuratedFileName {
		return fmt.Errorf("refusing to write the curated workstreams file")
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("can't marshal workstreams: %w", err)
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("can't write %s: %w", path, err)
	}
	return nil
}
