// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package workstream groups a run's events into user-visible workstreams and
// resolves which workstream file describes a run. Curated state is sacred:
// the tool never writes workstreams.yaml, only the suggestion next to it.
package workstream

import (
	"sort"
	"time"

	"github.com/elastic/shiplog/internal/identity"
	"github.com/elastic/shiplog/internal/logger"
	"github.com/elastic/shiplog/internal/schema"
)

// Clusterer groups events into workstreams.
type Clusterer interface {
	// Name identifies the clusterer in logs and suggestion metadata.
	Name() string

	// Cluster assigns every event to exactly one workstream.
	Cluster(events []schema.EventEnvelope) ([]schema.Workstream, error)
}

// RepoClusterer groups events by repository. This is the default: a
// repository is the closest thing the ledger has to a project boundary.
type RepoClusterer struct{}

func (RepoClusterer) Name() string { return "repo" }

// Cluster method groups by repo.full_name. Events without a repository (some
// manual entries) fall into a shared bucket.
func (RepoClusterer) Cluster(events []schema.EventEnvelope) ([]schema.Workstream, error) {
	groups := map[string][]schema.EventEnvelope{}
	for _, event := range events {
		key := event.Repo.FullName
		if key == "" {
			key = "unscoped"
		}
		groups[key] = append(groups[key], event)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	workstreams := make([]schema.Workstream, 0, len(keys))
	for _, key := range keys {
		workstreams = append(workstreams, buildWorkstream("repo", key, key, []string{"repo"}, groups[key]))
	}
	return workstreams, nil
}

// FallbackClusterer puts everything into a single workstream. It cannot
// fail, so orchestration never blocks on clustering.
type FallbackClusterer struct{}

func (FallbackClusterer) Name() string { return "fallback" }

func (FallbackClusterer) Cluster(events []schema.EventEnvelope) ([]schema.Workstream, error) {
	if len(events) == 0 {
		return nil, nil
	}
	return []schema.Workstream{
		buildWorkstream("fallback", "all", "All activity", nil, events),
	}, nil
}

// ClusterWithFallback runs the clusterer and falls back to the single-bucket
// grouping if it fails or leaves the assignment invariant broken.
func ClusterWithFallback(c Clusterer, events []schema.EventEnvelope) []schema.Workstream {
	workstreams, err := c.Cluster(events)
	if err == nil {
		file := schema.WorkstreamsFile{Version: schema.CurrentWorkstreamsVersion, Workstreams: workstreams}
		err = file.Validate(kindIndex(events))
	}
	if err != nil {
		logger.Warnf("Clusterer %q failed, using fallback grouping: %v", c.Name(), err)
		workstreams, _ = FallbackClusterer{}.Cluster(events)
	}
	return workstreams
}

// buildWorkstream assembles one workstream with deterministic member order,
// receipts and stats.
func buildWorkstream(clusterKind, clusterKey, title string, tags []string, members []schema.EventEnvelope) schema.Workstream {
	sorted := make([]schema.EventEnvelope, len(members))
	copy(sorted, members)
	schema.SortEvents(sorted)

	ids := make([]string, len(sorted))
	var stats schema.WorkstreamStats
	for i, event := range sorted {
		ids[i] = event.ID
		switch event.Kind {
		case schema.KindPullRequest:
			stats.PullRequests++
		case schema.KindReview:
			stats.Reviews++
		case schema.KindManual:
			stats.Manual++
		}
	}

	if tags == nil {
		tags = []string{}
	}
	return schema.Workstream{
		ID:       identity.WorkstreamID(clusterKind, clusterKey),
		Title:    title,
		Tags:     tags,
		Stats:    stats,
		Events:   ids,
		Receipts: selectReceipts(sorted),
	}
}

// selectReceipts picks up to MaxReceipts events to headline a workstream.
// Ranking: merged pull requests, then closed pull requests, then other pull
// requests, then reviews, then manual entries; within a rank most recent
// first, final tie-break ascending id. The packet header documents this
// ordering so readers know why a receipt made the cut.
func selectReceipts(events []schema.EventEnvelope) []string {
	ranked := make([]schema.EventEnvelope, len(events))
	copy(ranked, events)

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := receiptRank(ranked[i]), receiptRank(ranked[j])
		if ri != rj {
			return ri < rj
		}
		if !ranked[i].OccurredAt.Equal(ranked[j].OccurredAt) {
			return ranked[i].OccurredAt.After(ranked[j].OccurredAt)
		}
		return ranked[i].ID < ranked[j].ID
	})

	n := len(ranked)
	if n > schema.MaxReceipts {
		n = schema.MaxReceipts
	}
	receipts := make([]string, n)
	for i := 0; i < n; i++ {
		receipts[i] = ranked[i].ID
	}
	return receipts
}

func receiptRank(event schema.EventEnvelope) int {
	switch event.Kind {
	case schema.KindPullRequest:
		switch event.PullRequest.State {
		case schema.PRStateMerged:
			return 0
		case schema.PRStateClosed:
			return 1
		}
		return 2
	case schema.KindReview:
		return 3
	}
	return 4
}

func kindIndex(events []schema.EventEnvelope) map[string]schema.EventKind {
	kinds := make(map[string]schema.EventKind, len(events))
	for _, event := range events {
		kinds[event.ID] = event.Kind
	}
	return kinds
}

// NewSuggestion builds a workstreams file from a clustering pass.
func NewSuggestion(c Clusterer, events []schema.EventEnvelope, generatedAt time.Time) schema.WorkstreamsFile {
	file := schema.WorkstreamsFile{
		Version:     schema.CurrentWorkstreamsVersion,
		GeneratedAt: generatedAt.UTC(),
		Workstreams: ClusterWithFallback(c, events),
	}
	file.SortWorkstreams()
	return file
}

// ReceiptOrderingNote is the human-readable description of the receipt
// ranking, rendered into the packet header.
const ReceiptOrderingNote = "receipts are ranked: merged PRs, closed PRs, open PRs, reviews, manual entries; most recent first within each rank"
