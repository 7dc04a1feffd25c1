// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package githubsource collects pull-request and review activity from the
// GitHub Search API. The Search API caps every query at 1000 results, so the
// collector slices the requested window adaptively (month, then week, then
// day) until each slice fits under the cap, and records what it could not
// fetch in the coverage manifest instead of pretending completeness.
package githubsource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/go-github/v32/github"
	"github.com/pkg/errors"

	"github.com/elastic/shiplog/internal/ingest"
	"github.com/elastic/shiplog/internal/logger"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

const (
	// searchCap is the hard limit of results the Search API serves per query.
	searchCap = 1000

	perPage = 100
)

// Collector ingests GitHub activity.
type Collector struct{}

// New function creates a GitHub collector.
func New() *Collector {
	return &Collector{}
}

// Name method returns the source system token.
func (c *Collector) Name() schema.SourceSystem {
	return schema.SourceGitHub
}

// run carries the mutable state of one Collect call.
type run struct {
	client *github.Client
	opts   ingest.Options

	events   []schema.EventEnvelope
	seen     map[string]time.Time // event id -> occurred_at of first writer
	slices   []schema.CoverageSlice
	warnings []string
}

// Collect method fetches events for the user and window. Transient failures
// are retried by the transport; authentication failures are fatal. On
// cancellation the events fetched so far are returned together with the
// cancellation error, and coverage is marked partial.
func (c *Collector) Collect(ctx context.Context, opts ingest.Options) (*ingest.Result, error) {
	client, err := newClient(opts.Token, opts.APIBase)
	if err != nil {
		return nil, err
	}

	r := &run{
		client: client,
		opts:   opts,
		seen:   map[string]time.Time{},
	}

	collectErr := r.collectLens(ctx, prLens(opts))
	if collectErr == nil && opts.IncludeReviews {
		collectErr = r.collectLens(ctx, reviewLens(opts))
	}

	result := r.result()
	if collectErr != nil {
		if errors.Is(collectErr, context.Canceled) {
			result.Coverage.Completeness = schema.CompletenessPartial
			result.Coverage.Warnings = append(result.Coverage.Warnings, "collection cancelled before the window was fully covered")
			return result, fmt.Errorf("github collection cancelled (window: %s): %w", opts.Window, collectErr)
		}
		return nil, collectErr
	}
	return result, nil
}

// lens is one way of querying the Search API for a user's activity.
type lens struct {
	name string

	// query renders the search query for a window. Search date ranges are
	// inclusive on both ends, so the half-open window drops one day from
	// until.
	query func(w window.TimeWindow) string

	// convert turns one search hit into zero or more events.
	convert func(ctx context.Context, r *run, issue *github.Issue, w window.TimeWindow) ([]schema.EventEnvelope, error)
}

func prLens(opts ingest.Options) lens {
	qualifier := "merged"
	if opts.Mode == ingest.ModeCreated {
		qualifier = "created"
	}
	return lens{
		name: "pull-requests",
		query: func(w window.TimeWindow) string {
			return fmt.Sprintf("is:pr author:%s %s:%s", opts.User, qualifier, searchRange(w))
		},
		convert: convertPullRequest,
	}
}

func reviewLens(opts ingest.Options) lens {
	return lens{
		name: "reviews",
		query: func(w window.TimeWindow) string {
			return fmt.Sprintf("is:pr reviewed-by:%s updated:%s", opts.User, searchRange(w))
		},
		convert: convertReviews,
	}
}

func searchRange(w window.TimeWindow) string {
	lastDay := w.Until.AddDate(0, 0, -1)
	return w.Since.Format(window.DateFormat) + ".." + lastDay.Format(window.DateFormat)
}

func (r *run) collectLens(ctx context.Context, l lens) error {
	return r.collectWindows(ctx, l, window.Slice(r.opts.Window.Since, r.opts.Window.Until, window.Month), window.Month)
}

// collectWindows walks the slices of one granularity, splitting any slice
// that hits the search cap into the next finer granularity.
func (r *run) collectWindows(ctx context.Context, l lens, windows []window.TimeWindow, g window.Granularity) error {
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := l.query(w)
		firstPage, resp, err := r.search(ctx, query, 1)
		if err != nil {
			return r.describeSearchError(err, w)
		}
		total := firstPage.GetTotal()

		if total >= searchCap {
			if finer, ok := window.Finer(g); ok {
				logger.Debugf("Slice %s hits the search cap (%d results), splitting into %s granularity", w, total, finer)
				if err := r.collectWindows(ctx, l, window.Slice(w.Since, w.Until, finer), finer); err != nil {
					return err
				}
				continue
			}
			// Day granularity and still over the cap: fetch what the API
			// serves and record the loss honestly.
			warning := fmt.Sprintf("search cap exceeded for %s on %s (%s lens): %d results, fetched %d",
				r.opts.User, w.Since.Format(window.DateFormat), l.name, total, searchCap)
			logger.Warn(warning)
			r.warnings = append(r.warnings, warning)
		}

		slice := schema.CoverageSlice{
			Window:     w,
			Query:      query,
			TotalCount: total,
		}
		if l.name != "pull-requests" {
			slice.Notes = append(slice.Notes, l.name+" lens")
		}

		fetched, err := r.fetchAllPages(ctx, l, w, query, firstPage, resp)
		slice.Fetched = fetched
		if total >= searchCap {
			slice.IncompleteResults = fetched < total
		}
		r.slices = append(r.slices, slice)
		if err != nil {
			return err
		}
	}
	return nil
}

// fetchAllPages converts the first page already at hand and walks the
// remaining pages. Returns how many search hits were consumed.
func (r *run) fetchAllPages(ctx context.Context, l lens, w window.TimeWindow, query string, firstPage *github.IssuesSearchResult, resp *github.Response) (int, error) {
	fetched := 0
	page := firstPage
	for {
		for _, issue := range page.Issues {
			if err := ctx.Err(); err != nil {
				return fetched, err
			}
			events, err := l.convert(ctx, r, issue, w)
			if err != nil {
				return fetched, err
			}
			fetched++
			r.record(events)
		}

		if resp == nil || resp.NextPage == 0 || fetched >= searchCap {
			return fetched, nil
		}
		if err := r.throttle(ctx); err != nil {
			return fetched, err
		}

		var err error
		page, resp, err = r.search(ctx, query, resp.NextPage)
		if err != nil {
			return fetched, r.describeSearchError(err, w)
		}
	}
}

func (r *run) search(ctx context.Context, query string, page int) (*github.IssuesSearchResult, *github.Response, error) {
	if err := r.throttle(ctx); err != nil {
		return nil, nil, err
	}
	result, resp, err := r.client.Search.Issues(ctx, query, &github.SearchOptions{
		Sort:  "created",
		Order: "asc",
		ListOptions: github.ListOptions{
			PerPage: perPage,
			Page:    page,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return result, resp, nil
}

func (r *run) describeSearchError(err error, w window.TimeWindow) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isAuthError(err) {
		return errors.Wrapf(err, "github authentication rejected (source: github, window: %s); set %s with a token that can read the target repositories",
			w, envAuth)
	}
	return fmt.Errorf("github search failed (source: github, window: %s): %w", w, err)
}

// record deduplicates by envelope id. The first writer wins; a later
// envelope with the same id but a different occurred_at is recorded as a
// coverage warning instead of silently replacing evidence.
func (r *run) record(events []schema.EventEnvelope) {
	for _, event := range events {
		if firstAt, dup := r.seen[event.ID]; dup {
			if !firstAt.Equal(event.OccurredAt) {
				r.warnings = append(r.warnings, fmt.Sprintf(
					"event %s seen twice with different timestamps (%s vs %s); keeping the first",
					event.ID[:12], firstAt.Format(time.RFC3339), event.OccurredAt.Format(time.RFC3339)))
			}
			continue
		}
		r.seen[event.ID] = event.OccurredAt
		r.events = append(r.events, event)
	}
}

func (r *run) throttle(ctx context.Context) error {
	if r.opts.Throttle <= 0 {
		return nil
	}
	timer := time.NewTimer(r.opts.Throttle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *run) result() *ingest.Result {
	schema.SortEvents(r.events)

	coverage := schema.CoverageManifest{
		User:     r.opts.User,
		Window:   r.opts.Window,
		Mode:     string(r.opts.Mode),
		Sources:  []schema.SourceSystem{schema.SourceGitHub},
		Slices:   r.slices,
		Warnings: r.warnings,
	}
	coverage.SortSlices()
	coverage.ComputeCompleteness()

	return &ingest.Result{
		Events:   r.events,
		Coverage: coverage,
	}
}

// opaquePRID builds the stable per-entity identifier used in event ids.
func opaquePRID(number int) string {
	return strconv.Itoa(number)
}
