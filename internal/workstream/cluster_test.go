// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package workstream

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/shiplog/internal/identity"
	"github.com/elastic/shiplog/internal/schema"
)

func prEvent(repo string, number int, state schema.PullRequestState, at time.Time) schema.EventEnvelope {
	return schema.EventEnvelope{
		ID:         identity.EventID(string(schema.KindPullRequest), "github", repo, fmt.Sprint(number)),
		Kind:       schema.KindPullRequest,
		OccurredAt: at,
		Actor:      schema.Actor{Login: "alice"},
		Repo:       schema.Repo{FullName: repo, Visibility: schema.VisibilityPublic},
		PullRequest: &schema.PullRequestPayload{
			Number: number, Title: fmt.Sprintf("PR %d", number), State: state, CreatedAt: at,
		},
		Source: schema.Source{System: schema.SourceGitHub},
	}
}

func reviewEvent(repo string, id int, at time.Time) schema.EventEnvelope {
	return schema.EventEnvelope{
		ID:         identity.EventID(string(schema.KindReview), "github", repo, fmt.Sprint(id)),
		Kind:       schema.KindReview,
		OccurredAt: at,
		Actor:      schema.Actor{Login: "alice"},
		Repo:       schema.Repo{FullName: repo, Visibility: schema.VisibilityPublic},
		Review:     &schema.ReviewPayload{PullNumber: id, PullTitle: "reviewed", State: schema.ReviewApproved},
		Source:     schema.Source{System: schema.SourceGitHub},
	}
}

func TestRepoClustererAssignsEveryEventOnce(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []schema.EventEnvelope{
		prEvent("alice/w", 1, schema.PRStateMerged, base),
		prEvent("alice/w", 2, schema.PRStateOpen, base.Add(time.Hour)),
		prEvent("alice/docs", 3, schema.PRStateMerged, base.Add(2*time.Hour)),
		reviewEvent("alice/w", 9, base.Add(3*time.Hour)),
	}

	workstreams, err := RepoClusterer{}.Cluster(events)
	require.NoError(t, err)
	require.Len(t, workstreams, 2)

	file := schema.WorkstreamsFile{Version: schema.CurrentWorkstreamsVersion, Workstreams: workstreams}
	require.NoError(t, file.Validate(kindIndex(events)))

	byTitle := map[string]schema.Workstream{}
	for _, ws := range workstreams {
		byTitle[ws.Title] = ws
	}
	w := byTitle["alice/w"]
	assert.Equal(t, schema.WorkstreamStats{PullRequests: 2, Reviews: 1}, w.Stats)
	assert.Contains(t, w.Tags, "repo")
	assert.Len(t, w.Events, 3)
}

func TestClusterIDsAreDeterministic(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []schema.EventEnvelope{prEvent("alice/w", 1, schema.PRStateMerged, base)}

	first, err := RepoClusterer{}.Cluster(events)
	require.NoError(t, err)
	second, err := RepoClusterer{}.Cluster(events)
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, identity.WorkstreamID("repo", "alice/w"), first[0].ID)
}

func TestReceiptOrdering(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	open := prEvent("alice/w", 1, schema.PRStateOpen, base.Add(10*time.Hour))
	mergedOld := prEvent("alice/w", 2, schema.PRStateMerged, base)
	mergedNew := prEvent("alice/w", 3, schema.PRStateMerged, base.Add(5*time.Hour))
	review := reviewEvent("alice/w", 9, base.Add(20*time.Hour))

	workstreams, err := RepoClusterer{}.Cluster([]schema.EventEnvelope{open, mergedOld, mergedNew, review})
	require.NoError(t, err)
	require.Len(t, workstreams, 1)

	receipts := workstreams[0].Receipts
	require.Len(t, receipts, 4)
	// Merged first (most recent merged leading), then open, then review.
	assert.Equal(t, mergedNew.ID, receipts[0])
	assert.Equal(t, mergedOld.ID, receipts[1])
	assert.Equal(t, open.ID, receipts[2])
	assert.Equal(t, review.ID, receipts[3])
}

func TestReceiptsCapped(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var events []schema.EventEnvelope
	for i := 0; i < 25; i++ {
		events = append(events, prEvent("alice/w", i, schema.PRStateMerged, base.Add(time.Duration(i)*time.Hour)))
	}

	workstreams, err := RepoClusterer{}.Cluster(events)
	require.NoError(t, err)
	require.Len(t, workstreams, 1)
	assert.Len(t, workstreams[0].Receipts, schema.MaxReceipts)
	assert.Len(t, workstreams[0].Events, 25)
}

type brokenClusterer struct{}

func (brokenClusterer) Name() string { return "broken" }
func (brokenClusterer) Cluster([]schema.EventEnvelope) ([]schema.Workstream, error) {
	return nil, fmt.Errorf("boom")
}

func TestClusterWithFallback(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []schema.EventEnvelope{
		prEvent("alice/w", 1, schema.PRStateMerged, base),
		prEvent("alice/docs", 2, schema.PRStateMerged, base),
	}

	workstreams := ClusterWithFallback(brokenClusterer{}, events)
	require.Len(t, workstreams, 1)
	assert.Equal(t, "All activity", workstreams[0].Title)
	assert.Len(t, workstreams[0].Events, 2)
}
