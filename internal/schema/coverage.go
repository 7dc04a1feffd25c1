// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package schema

import (
	"fmt"
	"sort"

	"github.com/elastic/shiplog/internal/window"
)

// Completeness summarizes whether a run fetched everything it queried for.
type Completeness string

const (
	CompletenessComplete Completeness = "complete"
	CompletenessPartial  Completeness = "partial"
	CompletenessUnknown  Completeness = "unknown"
)

// CoverageSlice records one query issued against a source: the window it
// covered, how many results the source reported and how many were fetched.
type CoverageSlice struct {
	Window            window.TimeWindow `json:"window"`
	Query             string            `json:"query"`
	TotalCount        int               `json:"total_count"`
	Fetched           int               `json:"fetched"`
	IncompleteResults bool              `json:"incomplete_results,omitempty"`
	Notes             []string          `json:"notes,omitempty"`
}

// Validate method checks the slice accounting invariants.
func (s CoverageSlice) Validate() error {
	if s.Fetched > s.TotalCount {
		return fmt.Errorf("slice %s: fetched (%d) exceeds total_count (%d)", s.Window, s.Fetched, s.TotalCount)
	}
	if s.IncompleteResults && s.Fetched >= s.TotalCount {
		return fmt.Errorf("slice %s: marked incomplete but fetched (%d) covers total_count (%d)", s.Window, s.Fetched, s.TotalCount)
	}
	return nil
}

// CoverageManifest describes what a run queried and what may be missing.
// It is the honesty record backing every claim in the packet.
type CoverageManifest struct {
	RunID        string            `json:"run_id"`
	User         string            `json:"user"`
	Window       window.TimeWindow `json:"window"`
	Mode         string            `json:"mode"`
	Sources      []SourceSystem    `json:"sources"`
	Slices       []CoverageSlice   `json:"slices"`
	Warnings     []string          `json:"warnings,omitempty"`
	Completeness Completeness      `json:"completeness"`
}

// ComputeCompleteness method derives the manifest completeness from its
// slices: complete only when every slice fetched everything it counted.
func (m *CoverageManifest) ComputeCompleteness() {
	if len(m.Slices) == 0 {
		m.Completeness = CompletenessUnknown
		return
	}
	for _, slice := range m.Slices {
		if slice.IncompleteResults || slice.Fetched != slice.TotalCount {
			m.Completeness = CompletenessPartial
			return
		}
	}
	m.Completeness = CompletenessComplete
}

// SortSlices method orders slices chronologically.
func (m *CoverageManifest) SortSlices() {
	sort.SliceStable(m.Slices, func(i, j int) bool {
		return m.Slices[i].Window.Since.Before(m.Slices[j].Window.Since)
	})
}

// Validate method checks the accounting invariants of every slice. The
// completeness value is not checked against the slices.
func (m CoverageManifest) Validate() error {
	for _, slice := range m.Slices {
		if err := slice.Validate(); err != nil {
			return err
		}
	}
	return nil
}
