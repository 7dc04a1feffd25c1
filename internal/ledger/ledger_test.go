// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/shiplog/internal/identity"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

func testEvents() []schema.EventEnvelope {
	at := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	return []schema.EventEnvelope{
		{
			ID:         identity.EventID("pull-request", "github", "alice/w", "1"),
			Kind:       schema.KindPullRequest,
			OccurredAt: at,
			Actor:      schema.Actor{Login: "alice"},
			Repo:       schema.Repo{FullName: "alice/w", Visibility: schema.VisibilityPublic},
			PullRequest: &schema.PullRequestPayload{
				Number: 1, Title: "Fix auth", State: schema.PRStateMerged, CreatedAt: at,
			},
			Source: schema.Source{System: schema.SourceGitHub, OpaqueID: "1"},
		},
		{
			ID:         identity.EventID("review", "github", "alice/w", "2"),
			Kind:       schema.KindReview,
			OccurredAt: at.Add(time.Hour),
			Actor:      schema.Actor{Login: "alice"},
			Repo:       schema.Repo{FullName: "alice/w", Visibility: schema.VisibilityPublic},
			Review:     &schema.ReviewPayload{PullNumber: 2, PullTitle: "Add cache", State: schema.ReviewApproved},
			Source:     schema.Source{System: schema.SourceGitHub, OpaqueID: "2"},
		},
	}
}

func TestEventsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), EventsFileName)
	events := testEvents()

	require.NoError(t, WriteEvents(path, events))
	decoded, err := ReadEvents(path)
	require.NoError(t, err)

	if diff := cmp.Diff(events, decoded); diff != "" {
		t.Errorf("ledger round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEventsIgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), EventsFileName)
	events := testEvents()
	require.NoError(t, WriteEvents(path, events))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	padded := append([]byte("\n   \n"), data...)
	padded = append(padded, []byte("\n\t\n")...)
	require.NoError(t, os.WriteFile(path, padded, 0o644))

	decoded, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Len(t, decoded, len(events))
}

func TestReadEventsReportsLineNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), EventsFileName)
	require.NoError(t, os.WriteFile(path, []byte("\n{not json}\n"), 0o644))

	_, err := ReadEvents(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2")
}

func TestCoverageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), CoverageFileName)
	manifest := schema.CoverageManifest{
		RunID: "20250315T120000Z",
		User:  "alice",
		Window: window.TimeWindow{
			Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Until: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Mode:    "merged",
		Sources: []schema.SourceSystem{schema.SourceGitHub},
		Slices: []schema.CoverageSlice{
			{
				Window: window.TimeWindow{
					Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
					Until: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
				},
				Query:      "is:pr author:alice merged:2025-01-01..2025-01-31",
				TotalCount: 12,
				Fetched:    12,
			},
		},
		Completeness: schema.CompletenessComplete,
	}

	require.NoError(t, WriteCoverage(path, manifest))
	decoded, err := ReadCoverage(path)
	require.NoError(t, err)
	assert.Equal(t, manifest.RunID, decoded.RunID)
	assert.Equal(t, manifest.Completeness, decoded.Completeness)
	require.Len(t, decoded.Slices, 1)
	assert.Equal(t, 12, decoded.Slices[0].Fetched)
}

func TestWriteCoverageRejectsInvalidSlices(t *testing.T) {
	path := filepath.Join(t.TempDir(), CoverageFileName)
	manifest := schema.CoverageManifest{
		RunID: "r",
		Slices: []schema.CoverageSlice{
			{TotalCount: 1, Fetched: 2},
		},
	}
	assert.Error(t, WriteCoverage(path, manifest))
}
