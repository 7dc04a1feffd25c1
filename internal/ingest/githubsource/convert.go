// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package githubsource

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v32/github"

	"github.com/elastic/shiplog/internal/cache"
	"github.com/elastic/shiplog/internal/identity"
	"github.com/elastic/shiplog/internal/ingest"
	"github.com/elastic/shiplog/internal/logger"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

// prDetails is the subset of pull-request fields worth a per-entity fetch.
// It is also the cached representation.
type prDetails struct {
	State        string     `json:"state"`
	Merged       bool       `json:"merged"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	Additions    *int       `json:"additions,omitempty"`
	Deletions    *int       `json:"deletions,omitempty"`
	ChangedFiles *int       `json:"changed_files,omitempty"`
}

func convertPullRequest(ctx context.Context, r *run, issue *github.Issue, w window.TimeWindow) ([]schema.EventEnvelope, error) {
	repoName, err := repoFromIssue(issue)
	if err != nil {
		return nil, err
	}
	number := issue.GetNumber()

	details, err := r.fetchPRDetails(ctx, repoName, number)
	if err != nil {
		return nil, err
	}

	state := prState(issue, details)
	occurredAt := issue.GetCreatedAt()
	if r.opts.Mode == ingest.ModeMerged && details != nil && details.MergedAt != nil {
		occurredAt = *details.MergedAt
	}

	subWindow := w
	payload := &schema.PullRequestPayload{
		Number:    number,
		Title:     issue.GetTitle(),
		State:     state,
		CreatedAt: issue.GetCreatedAt(),
		SubWindow: &subWindow,
	}
	if details != nil {
		payload.MergedAt = details.MergedAt
		payload.Additions = details.Additions
		payload.Deletions = details.Deletions
		payload.ChangedFiles = details.ChangedFiles
	}

	event := schema.EventEnvelope{
		ID:          identity.EventID(string(schema.KindPullRequest), string(schema.SourceGitHub), repoName, opaquePRID(number)),
		Kind:        schema.KindPullRequest,
		OccurredAt:  occurredAt,
		Actor:       schema.Actor{Login: r.opts.User},
		Repo:        repoRecord(repoName, issue),
		PullRequest: payload,
		Links:       []schema.Link{{Label: "pull request", URL: issue.GetHTMLURL()}},
		Source: schema.Source{
			System:   schema.SourceGitHub,
			URL:      issue.GetHTMLURL(),
			OpaqueID: fmt.Sprintf("%s#%d", repoName, number),
		},
	}
	event.NormalizeTags()
	return []schema.EventEnvelope{event}, nil
}

func convertReviews(ctx context.Context, r *run, issue *github.Issue, w window.TimeWindow) ([]schema.EventEnvelope, error) {
	repoName, err := repoFromIssue(issue)
	if err != nil {
		return nil, err
	}
	owner, name, _ := strings.Cut(repoName, "/")
	number := issue.GetNumber()

	reviews, err := r.listReviews(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("can't list reviews for %s#%d: %w", repoName, number, err)
	}

	var events []schema.EventEnvelope
	for _, review := range reviews {
		if !strings.EqualFold(review.GetUser().GetLogin(), r.opts.User) {
			continue
		}
		submittedAt := review.GetSubmittedAt()
		if !r.opts.Window.Contains(submittedAt) {
			continue
		}

		events = append(events, schema.EventEnvelope{
			ID:         identity.EventID(string(schema.KindReview), string(schema.SourceGitHub), repoName, strconv.FormatInt(review.GetID(), 10)),
			Kind:       schema.KindReview,
			OccurredAt: submittedAt,
			Actor:      schema.Actor{Login: r.opts.User},
			Repo:       repoRecord(repoName, issue),
			Review: &schema.ReviewPayload{
				PullNumber: number,
				PullTitle:  issue.GetTitle(),
				State:      reviewState(review.GetState()),
			},
			Links: []schema.Link{{Label: "review", URL: review.GetHTMLURL()}},
			Source: schema.Source{
				System:   schema.SourceGitHub,
				URL:      review.GetHTMLURL(),
				OpaqueID: fmt.Sprintf("%s#%d/review/%d", repoName, number, review.GetID()),
			},
		})
	}
	return events, nil
}

// fetchPRDetails looks the pull request up in the response cache before
// asking the API. Details are optional enrichment: a failed fetch degrades
// to the search result fields with a warning.
func (r *run) fetchPRDetails(ctx context.Context, repoName string, number int) (*prDetails, error) {
	owner, name, ok := strings.Cut(repoName, "/")
	if !ok {
		return nil, nil
	}

	key := cache.Key(fmt.Sprintf("repos/%s/pulls/%d", repoName, number), nil)
	if data, err := r.opts.Cache.Get(key); err == nil {
		var details prDetails
		if err := json.Unmarshal(data, &details); err == nil {
			return &details, nil
		}
	}

	pr, _, err := r.client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		if isAuthError(err) || ctx.Err() != nil {
			return nil, r.describeSearchError(err, r.opts.Window)
		}
		logger.Warnf("Can't fetch details for %s#%d, keeping search fields only: %v", repoName, number, err)
		return nil, nil
	}

	details := &prDetails{
		State:        pr.GetState(),
		Merged:       pr.GetMerged(),
		MergedAt:     pr.MergedAt,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		ChangedFiles: pr.ChangedFiles,
	}
	if data, err := json.Marshal(details); err == nil {
		if err := r.opts.Cache.Put(key, data, 0); err != nil {
			logger.Debugf("Can't cache details for %s#%d: %v", repoName, number, err)
		}
	}
	return details, nil
}

func (r *run) listReviews(ctx context.Context, owner, name string, number int) ([]*github.PullRequestReview, error) {
	key := cache.Key(fmt.Sprintf("repos/%s/%s/pulls/%d/reviews", owner, name, number), nil)
	if data, err := r.opts.Cache.Get(key); err == nil {
		var reviews []*github.PullRequestReview
		if err := json.Unmarshal(data, &reviews); err == nil {
			return reviews, nil
		}
	}

	var all []*github.PullRequestReview
	opts := &github.ListOptions{PerPage: perPage}
	for {
		reviews, resp, err := r.client.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, reviews...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if data, err := json.Marshal(all); err == nil {
		if err := r.opts.Cache.Put(key, data, 0); err != nil {
			logger.Debugf("Can't cache reviews for %s/%s#%d: %v", owner, name, number, err)
		}
	}
	return all, nil
}

func repoFromIssue(issue *github.Issue) (string, error) {
	repositoryURL := issue.GetRepositoryURL()
	marker := "/repos/"
	idx := strings.Index(repositoryURL, marker)
	if idx < 0 {
		return "", fmt.Errorf("can't derive repository from search result (repository_url: %q)", repositoryURL)
	}
	fullName := repositoryURL[idx+len(marker):]
	if strings.Count(fullName, "/") != 1 {
		return "", fmt.Errorf("unexpected repository path %q in search result", fullName)
	}
	return fullName, nil
}

func repoRecord(fullName string, issue *github.Issue) schema.Repo {
	htmlURL := issue.GetHTMLURL()
	repoURL := ""
	if idx := strings.Index(htmlURL, "/pull/"); idx > 0 {
		repoURL = htmlURL[:idx]
	}
	return schema.Repo{
		FullName:   fullName,
		HTMLURL:    repoURL,
		Visibility: schema.VisibilityUnknown,
	}
}

func prState(issue *github.Issue, details *prDetails) schema.PullRequestState {
	if details != nil {
		if details.Merged || details.MergedAt != nil {
			return schema.PRStateMerged
		}
		switch details.State {
		case "open":
			return schema.PRStateOpen
		case "closed":
			return schema.PRStateClosed
		}
		return schema.PRStateUnknown
	}
	switch issue.GetState() {
	case "open":
		return schema.PRStateOpen
	case "closed":
		return schema.PRStateClosed
	}
	return schema.PRStateUnknown
}

func reviewState(state string) schema.ReviewState {
	switch strings.ToUpper(state) {
	case "APPROVED":
		return schema.ReviewApproved
	case "CHANGES_REQUESTED":
		return schema.ReviewChangesRequested
	case "COMMENTED":
		return schema.ReviewCommented
	case "DISMISSED":
		return schema.ReviewDismissed
	}
	return schema.ReviewUnknown
}
