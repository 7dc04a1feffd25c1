// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package narrative drafts workstream summaries through a user-provided,
// OpenAI-compatible backend. Drafts are receipts-first: the prompt carries
// only fetched evidence, a workstream without receipts gets no draft, and
// drafts land exclusively in the suggested file where the user reviews them.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/shiplog/internal/schema"
)

const requestTimeout = 60 * time.Second

// Backend talks to a chat-completions endpoint.
type Backend struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewBackend creates a backend for the endpoint. model may be empty when the
// server has a single default model.
func NewBackend(endpoint, model string) *Backend {
	return &Backend{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You summarize engineering workstreams for a self-review. " +
	"Use only the evidence provided. Two sentences at most. " +
	"Do not invent outcomes that are not in the evidence."

// Suggest method drafts a summary for the workstream from its receipts.
// Without receipts there is no evidence and no call is made.
func (b *Backend) Suggest(ctx context.Context, ws schema.Workstream, receipts []schema.EventEnvelope) (string, error) {
	if b == nil || len(receipts) == 0 {
		return "", nil
	}

	var evidence strings.Builder
	fmt.Fprintf(&evidence, "Workstream: %s\n", ws.Title)
	fmt.Fprintf(&evidence, "Counts: %d pull requests, %d reviews, %d manual entries\n",
		ws.Stats.PullRequests, ws.Stats.Reviews, ws.Stats.Manual)
	evidence.WriteString("Receipts:\n")
	for _, event := range receipts {
		fmt.Fprintf(&evidence, "- %s %s: %s\n",
			event.OccurredAt.Format("2006-01-02"), event.Kind, event.Title())
	}

	body, err := json.Marshal(chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: evidence.String()},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("narrative backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("narrative backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("can't parse narrative response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("narrative backend returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
