// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package githubsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/shiplog/internal/ingest"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

type searchItem struct {
	Number        int    `json:"number"`
	Title         string `json:"title"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
	HTMLURL       string `json:"html_url"`
	RepositoryURL string `json:"repository_url"`
}

type searchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []searchItem `json:"items"`
}

// fakeGitHub simulates the Search API with a configurable per-range answer.
type fakeGitHub struct {
	t *testing.T

	// answer receives the date range from the query (e.g. "2025-03-01..2025-03-31")
	// and returns the response for it.
	answer func(dateRange string) searchResponse

	searchCalls []string
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		f.searchCalls = append(f.searchCalls, q)

		dateRange := q[strings.LastIndex(q, ":")+1:]
		writeJSON(f.t, w, f.answer(dateRange))
	})
	mux.HandleFunc("/repos/alice/w/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(f.t, w, map[string]any{
			"number":        42,
			"state":         "closed",
			"merged":        true,
			"merged_at":     "2025-03-15T10:00:00Z",
			"additions":     10,
			"deletions":     2,
			"changed_files": 3,
		})
	})
	mux.HandleFunc("/repos/alice/w/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(f.t, w, []map[string]any{
			{
				"id":           9001,
				"state":        "APPROVED",
				"submitted_at": "2025-03-16T09:00:00Z",
				"html_url":     "https://github.com/alice/w/pull/42#pullrequestreview-9001",
				"user":         map[string]any{"login": "alice"},
			},
			{
				"id":           9002,
				"state":        "COMMENTED",
				"submitted_at": "2025-03-16T11:00:00Z",
				"html_url":     "https://github.com/alice/w/pull/42#pullrequestreview-9002",
				"user":         map[string]any{"login": "bob"},
			},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func mergedPRItem() searchItem {
	return searchItem{
		Number:        42,
		Title:         "Fix auth",
		State:         "closed",
		CreatedAt:     "2025-03-13T10:00:00Z",
		HTMLURL:       "https://github.com/alice/w/pull/42",
		RepositoryURL: "https://api.github.com/repos/alice/w",
	}
}

func testOptions(apiBase string) ingest.Options {
	return ingest.Options{
		User: "alice",
		Window: window.TimeWindow{
			Since: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Until: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		Mode:    ingest.ModeMerged,
		APIBase: apiBase,
	}
}

func TestCollectSingleMergedPR(t *testing.T) {
	fake := &fakeGitHub{t: t, answer: func(string) searchResponse {
		return searchResponse{TotalCount: 1, Items: []searchItem{mergedPRItem()}}
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	result, err := New().Collect(context.Background(), testOptions(server.URL))
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	event := result.Events[0]
	assert.Equal(t, schema.KindPullRequest, event.Kind)
	assert.Equal(t, "alice/w", event.Repo.FullName)
	require.NotNil(t, event.PullRequest)
	assert.Equal(t, "Fix auth", event.PullRequest.Title)
	assert.Equal(t, schema.PRStateMerged, event.PullRequest.State)
	assert.Equal(t, time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), event.OccurredAt)
	require.NoError(t, event.Validate())

	assert.Equal(t, schema.CompletenessComplete, result.Coverage.Completeness)
	require.Len(t, result.Coverage.Slices, 1)
	assert.Equal(t, 1, result.Coverage.Slices[0].Fetched)
	assert.Contains(t, result.Coverage.Slices[0].Query, "is:pr author:alice merged:2025-03-01..2025-03-31")
}

func TestCollectEventIDIsDeterministic(t *testing.T) {
	fake := &fakeGitHub{t: t, answer: func(string) searchResponse {
		return searchResponse{TotalCount: 1, Items: []searchItem{mergedPRItem()}}
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	first, err := New().Collect(context.Background(), testOptions(server.URL))
	require.NoError(t, err)
	second, err := New().Collect(context.Background(), testOptions(server.URL))
	require.NoError(t, err)

	require.Len(t, first.Events, 1)
	require.Len(t, second.Events, 1)
	assert.Equal(t, first.Events[0].ID, second.Events[0].ID)
}

func rangeDays(t *testing.T, dateRange string) int {
	t.Helper()
	parts := strings.SplitN(dateRange, "..", 2)
	require.Len(t, parts, 2)
	since, err := time.Parse(window.DateFormat, parts[0])
	require.NoError(t, err)
	until, err := time.Parse(window.DateFormat, parts[1])
	require.NoError(t, err)
	return int(until.Sub(since).Hours()/24) + 1 // search ranges are inclusive
}

func TestCollectSplitsCappedSlices(t *testing.T) {
	fake := &fakeGitHub{t: t}
	fake.answer = func(dateRange string) searchResponse {
		if rangeDays(t, dateRange) > 7 {
			// Month-level query is over the cap; the collector must split.
			return searchResponse{TotalCount: 1500}
		}
		return searchResponse{TotalCount: 1, Items: []searchItem{mergedPRItem()}}
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	result, err := New().Collect(context.Background(), testOptions(server.URL))
	require.NoError(t, err)

	// Week slices tile the month exactly.
	require.NotEmpty(t, result.Coverage.Slices)
	assert.True(t, result.Coverage.Slices[0].Window.Since.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	last := result.Coverage.Slices[len(result.Coverage.Slices)-1]
	assert.True(t, last.Window.Until.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
	for i := 1; i < len(result.Coverage.Slices); i++ {
		assert.True(t, result.Coverage.Slices[i].Window.Since.Equal(result.Coverage.Slices[i-1].Window.Until))
	}
	for _, slice := range result.Coverage.Slices {
		assert.LessOrEqual(t, slice.Window.Days(), 7)
	}

	// The same PR found in several slices is recorded once.
	assert.Len(t, result.Events, 1)
	assert.Equal(t, schema.CompletenessComplete, result.Coverage.Completeness)
}

func TestCollectDayOverflowIsHonest(t *testing.T) {
	fake := &fakeGitHub{t: t}
	fake.answer = func(dateRange string) searchResponse {
		if rangeDays(t, dateRange) > 1 {
			return searchResponse{TotalCount: 1500}
		}
		// Even a single day is over the cap: fetch what is served.
		return searchResponse{TotalCount: 1500, Items: []searchItem{mergedPRItem()}}
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	opts := testOptions(server.URL)
	opts.Window.Until = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	result, err := New().Collect(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, schema.CompletenessPartial, result.Coverage.Completeness)
	require.NotEmpty(t, result.Coverage.Slices)
	for _, slice := range result.Coverage.Slices {
		assert.Equal(t, 1, slice.Window.Days())
		assert.True(t, slice.IncompleteResults)
		assert.Less(t, slice.Fetched, slice.TotalCount)
		require.NoError(t, slice.Validate())
	}
	require.NotEmpty(t, result.Coverage.Warnings)
	assert.Contains(t, result.Coverage.Warnings[0], "search cap exceeded for alice on 2025-03-01")
}

func TestCollectIncludesReviews(t *testing.T) {
	fake := &fakeGitHub{t: t, answer: func(string) searchResponse {
		return searchResponse{TotalCount: 1, Items: []searchItem{mergedPRItem()}}
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	opts := testOptions(server.URL)
	opts.IncludeReviews = true

	result, err := New().Collect(context.Background(), opts)
	require.NoError(t, err)

	var reviews []schema.EventEnvelope
	for _, event := range result.Events {
		if event.Kind == schema.KindReview {
			reviews = append(reviews, event)
		}
	}
	// Only alice's review within the window survives; bob's is filtered out.
	require.Len(t, reviews, 1)
	assert.Equal(t, schema.ReviewApproved, reviews[0].Review.State)
	assert.Equal(t, 42, reviews[0].Review.PullNumber)

	var lensQueries int
	for _, q := range fake.searchCalls {
		if strings.Contains(q, "reviewed-by:alice") {
			lensQueries++
		}
	}
	assert.NotZero(t, lensQueries)
}

func TestCollectCancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeGitHub{t: t}
	fake.answer = func(string) searchResponse {
		cancel() // cancel mid-flight, after the first search answered
		return searchResponse{TotalCount: 1, Items: []searchItem{mergedPRItem()}}
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	result, err := New().Collect(ctx, testOptions(server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, schema.CompletenessPartial, result.Coverage.Completeness)
}

func TestCollectAuthErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	defer server.Close()

	_, err := New().Collect(context.Background(), testOptions(server.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication")
	assert.Contains(t, err.Error(), "2025-03-01")
}
