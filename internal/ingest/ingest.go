// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package ingest defines the collector contract implemented by source
// adapters. Adapters return events plus an honest coverage manifest; the
// engine owns everything that happens after.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/shiplog/internal/cache"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

// Mode selects which lens the collector queries with.
type Mode string

const (
	ModeMerged  Mode = "merged"
	ModeCreated Mode = "created"
)

// ParseMode function resolves a mode flag value.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeMerged, ModeCreated:
		return Mode(value), nil
	}
	return "", fmt.Errorf("unknown mode: %q (expected %s or %s)", value, ModeMerged, ModeCreated)
}

// Options configures a collection run.
type Options struct {
	User           string
	Window         window.TimeWindow
	Mode           Mode
	IncludeReviews bool

	// Throttle is the minimum interval between search requests.
	Throttle time.Duration

	// APIBase overrides the source API base URL. Empty means the default.
	APIBase string

	// Token authenticates against the source API. Empty is allowed for
	// publicly readable targets.
	Token string

	// Cache is the optional response cache for single-entity fetches.
	Cache *cache.Cache

	// Clock is injected for deterministic run artifacts. Nil means time.Now.
	Clock func() time.Time
}

// Now method returns the current instant from the injected clock.
func (o Options) Now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

// Result is what a collector produces: deduplicated events and a coverage
// manifest whose slices tile the requested window once for every query the
// collector runs.
type Result struct {
	Events   []schema.EventEnvelope
	Coverage schema.CoverageManifest
}

// Collector is a source adapter.
type Collector interface {
	// Name returns the source system this collector ingests from.
	Name() schema.SourceSystem

	// Collect fetches events for the user and window. On cancellation it
	// returns the events fetched so far, coverage marked partial, and the
	// cancellation error.
	Collect(ctx context.Context, opts Options) (*Result, error)
}
