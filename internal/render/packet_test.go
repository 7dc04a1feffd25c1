// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/shiplog/internal/identity"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

func packetInput() Input {
	at := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	event := schema.EventEnvelope{
		ID:         identity.EventID("pull-request", "github", "alice/w", "42"),
		Kind:       schema.KindPullRequest,
		OccurredAt: at,
		Actor:      schema.Actor{Login: "alice"},
		Repo:       schema.Repo{FullName: "alice/w", Visibility: schema.VisibilityPublic},
		PullRequest: &schema.PullRequestPayload{
			Number: 42, Title: "Fix auth", State: schema.PRStateMerged, CreatedAt: at,
		},
		Links:  []schema.Link{{Label: "pull request", URL: "https://github.com/alice/w/pull/42"}},
		Source: schema.Source{System: schema.SourceGitHub},
	}

	w := window.TimeWindow{
		Since: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	return Input{
		RunID:        "20250315T120000Z",
		User:         "alice",
		Window:       w,
		Mode:         "merged",
		Completeness: schema.CompletenessComplete,
		GeneratedAt:  time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
		Events:       []schema.EventEnvelope{event},
		Workstreams: schema.WorkstreamsFile{
			Version: schema.CurrentWorkstreamsVersion,
			Workstreams: []schema.Workstream{
				{
					ID:       identity.WorkstreamID("repo", "alice/w"),
					Title:    "alice/w",
					Tags:     []string{"repo"},
					Stats:    schema.WorkstreamStats{PullRequests: 1},
					Events:   []string{event.ID},
					Receipts: []string{event.ID},
				},
			},
		},
		Coverage: schema.CoverageManifest{
			RunID:        "20250315T120000Z",
			User:         "alice",
			Window:       w,
			Mode:         "merged",
			Completeness: schema.CompletenessComplete,
			Slices: []schema.CoverageSlice{
				{Window: w, Query: "is:pr author:alice merged:2025-03-01..2025-03-31", TotalCount: 1, Fetched: 1},
			},
			Warnings: []string{"example warning"},
		},
	}
}

func TestWritePacket(t *testing.T) {
	path := filepath.Join(t.TempDir(), PacketFileName)
	require.NoError(t, WritePacket(path, packetInput()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	packet := string(data)

	assert.Contains(t, packet, "alice/w")
	assert.Contains(t, packet, "Fix auth")
	assert.Contains(t, packet, "complete")
	assert.Contains(t, packet, "20250315T120000Z")
	assert.Contains(t, packet, "2025-03-01..2025-04-01")
	assert.Contains(t, packet, "example warning")
	assert.Contains(t, packet, "receipts are ranked")
	assert.Contains(t, packet, "https://github.com/alice/w/pull/42")
}

func TestWritePacketIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.md")
	second := filepath.Join(dir, "b.md")

	require.NoError(t, WritePacket(first, packetInput()))
	require.NoError(t, WritePacket(second, packetInput()))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWritePacketSkipsUnknownReceipts(t *testing.T) {
	in := packetInput()
	in.Workstreams.Workstreams[0].Events = append(in.Workstreams.Workstreams[0].Events, "gone")
	in.Workstreams.Workstreams[0].Receipts = append(in.Workstreams.Workstreams[0].Receipts, "gone")

	path := filepath.Join(t.TempDir(), PacketFileName)
	require.NoError(t, WritePacket(path, in))
}

func TestValidateTemplate(t *testing.T) {
	assert.NoError(t, validateTemplate("{{user}} {{#each workstreams}}{{title}}{{/each}}"))
	assert.Error(t, validateTemplate("{{user}} {{oops}}"))
	assert.Error(t, validateTemplate("{{#each undefined_things}}{{this}}{{/each}}"))
}
