// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package schema

import (
	"fmt"
	"sort"
	"time"
)

// MaxReceipts bounds how many events may headline a workstream.
const MaxReceipts = 10

// WorkstreamStats counts the event kinds assigned to a workstream.
type WorkstreamStats struct {
	PullRequests int `json:"pull_requests" yaml:"pull_requests"`
	Reviews      int `json:"reviews" yaml:"reviews"`
	Manual       int `json:"manual" yaml:"manual"`
}

// Workstream is a user-visible grouping of events with a bounded set of
// receipts backing its narrative.
type Workstream struct {
	ID       string          `json:"id" yaml:"id"`
	Title    string          `json:"title" yaml:"title"`
	Summary  string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags     []string        `json:"tags" yaml:"tags"`
	Stats    WorkstreamStats `json:"stats" yaml:"stats"`
	Events   []string        `json:"events" yaml:"events"`
	Receipts []string        `json:"receipts" yaml:"receipts"`
}

// Validate method checks the workstream invariants against the events it
// references: receipts are a subset of events, bounded by MaxReceipts, and
// stats match the referenced kinds. kinds maps event id to kind and may be
// nil when events are not at hand (curated files loaded without a ledger).
func (w Workstream) Validate(kinds map[string]EventKind) error {
	if w.ID == "" {
		return fmt.Errorf("workstream %q has no id", w.Title)
	}
	if len(w.Receipts) > MaxReceipts {
		return fmt.Errorf("workstream %q: %d receipts exceed the limit of %d", w.Title, len(w.Receipts), MaxReceipts)
	}

	members := make(map[string]struct{}, len(w.Events))
	for _, id := range w.Events {
		members[id] = struct{}{}
	}
	for _, id := range w.Receipts {
		if _, ok := members[id]; !ok {
			return fmt.Errorf("workstream %q: receipt %s is not among its events", w.Title, shortID(id))
		}
	}

	if kinds == nil {
		return nil
	}
	var stats WorkstreamStats
	for _, id := range w.Events {
		switch kinds[id] {
		case KindPullRequest:
			stats.PullRequests++
		case KindReview:
			stats.Reviews++
		case KindManual:
			stats.Manual++
		}
	}
	if stats != w.Stats {
		return fmt.Errorf("workstream %q: stats %+v don't match counted kinds %+v", w.Title, w.Stats, stats)
	}
	return nil
}

// WorkstreamsFile is the on-disk YAML representation of a run's workstreams.
type WorkstreamsFile struct {
	Version     int          `json:"version" yaml:"version"`
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	Workstreams []Workstream `json:"workstreams" yaml:"workstreams"`
}

// CurrentWorkstreamsVersion is the only version understood today.
const CurrentWorkstreamsVersion = 1

// Validate method checks the file-level invariant: every event id is assigned
// to exactly one workstream across the file.
func (f WorkstreamsFile) Validate(kinds map[string]EventKind) error {
	if f.Version != CurrentWorkstreamsVersion {
		return fmt.Errorf("unsupported workstreams file version %d", f.Version)
	}

	owner := map[string]string{}
	for _, ws := range f.Workstreams {
		if err := ws.Validate(kinds); err != nil {
			return err
		}
		for _, id := range ws.Events {
			if other, taken := owner[id]; taken {
				return fmt.Errorf("event %s assigned to both %q and %q", shortID(id), other, ws.Title)
			}
			owner[id] = ws.Title
		}
	}
	return nil
}

// SortWorkstreams method orders workstreams deterministically by id.
func (f *WorkstreamsFile) SortWorkstreams() {
	sort.SliceStable(f.Workstreams, func(i, j int) bool {
		return f.Workstreams[i].ID < f.Workstreams[j].ID
	})
}
