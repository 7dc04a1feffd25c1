// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package ledger reads and writes the append-only event record of a run and
// its coverage manifest. The ledger is the receipts store: it is written
// before any rendering so evidence survives a failed render.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/elastic/shiplog/internal/schema"
)

const (
	// EventsFileName is the JSONL event ledger inside a run directory.
	EventsFileName = "ledger.events.jsonl"

	// CoverageFileName is the coverage manifest inside a run directory.
	CoverageFileName = "coverage.manifest.json"
)

// WriteEvents function persists events as newline-delimited JSON, one
// envelope per line, in the order given. Callers sort with
// schema.SortEvents first.
func WriteEvents(path string, events []schema.EventEnvelope) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't create event ledger: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	encoder := json.NewEncoder(w)
	for i, event := range events {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("can't encode event %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("can't flush event ledger: %w", err)
	}
	return nil
}

// ReadEvents function parses a JSONL event ledger. Empty and whitespace-only
// lines are ignored. Parse failures carry the offending line number.
func ReadEvents(path string) ([]schema.EventEnvelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open event ledger: %w", err)
	}
	defer f.Close()

	var events []schema.EventEnvelope
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event schema.EventEnvelope
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("can't parse event ledger (%s:%d): %w", path, lineNumber, err)
		}
		if err := event.Validate(); err != nil {
			return nil, fmt.Errorf("invalid event in ledger (%s:%d): %w", path, lineNumber, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("can't read event ledger: %w", err)
	}
	return events, nil
}

// WriteCoverage function persists the coverage manifest as pretty JSON.
func WriteCoverage(path string, manifest schema.CoverageManifest) error {
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid coverage manifest: %w", err)
	}
	return writePrettyJSON(path, manifest)
}

// ReadCoverage function parses a coverage manifest and checks its invariants.
func ReadCoverage(path string) (schema.CoverageManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.CoverageManifest{}, fmt.Errorf("can't read coverage manifest: %w", err)
	}

	var manifest schema.CoverageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return schema.CoverageManifest{}, fmt.Errorf("can't parse coverage manifest (%s): %w", path, err)
	}
	if err := manifest.Validate(); err != nil {
		return schema.CoverageManifest{}, fmt.Errorf("coverage manifest violates invariants (%s): %w", path, err)
	}
	return manifest, nil
}

func writePrettyJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("can't marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("can't write %s: %w", path, err)
	}
	return nil
}
