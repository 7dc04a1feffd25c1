// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package schema defines the on-disk contracts shared by every shiplog
// component: the event envelope and its payload variants, the coverage
// manifest, workstream files, bundle manifests and the alias cache.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elastic/shiplog/internal/window"
)

// EventKind discriminates the payload variant carried by an envelope.
type EventKind string

const (
	KindPullRequest EventKind = "pull-request"
	KindReview      EventKind = "review"
	KindManual      EventKind = "manual"
)

// Valid method reports whether the kind is one of the known variants.
func (k EventKind) Valid() bool {
	switch k {
	case KindPullRequest, KindReview, KindManual:
		return true
	}
	return false
}

// SourceSystem identifies where an event was collected from.
type SourceSystem string

const (
	SourceGitHub     SourceSystem = "github"
	SourceJSONImport SourceSystem = "json_import"
	SourceLocalGit   SourceSystem = "local_git"
	SourceManual     SourceSystem = "manual"
	SourceUnknown    SourceSystem = "unknown"
)

// legacySourceNames maps pre-1.0 PascalCase serializations (lowercased) to the
// current flat tokens. Ledgers written by old versions must keep parsing.
var legacySourceNames = map[string]SourceSystem{
	"github":     SourceGitHub,
	"jsonimport": SourceJSONImport,
	"localgit":   SourceLocalGit,
	"manual":     SourceManual,
	"unknown":    SourceUnknown,
}

// ParseSourceSystem function resolves a serialized source-system token. The
// match is case-insensitive and accepts both current tokens and the legacy
// PascalCase variants.
func ParseSourceSystem(value string) (SourceSystem, error) {
	lower := strings.ToLower(value)
	switch SourceSystem(lower) {
	case SourceGitHub, SourceJSONImport, SourceLocalGit, SourceManual, SourceUnknown:
		return SourceSystem(lower), nil
	}
	if system, found := legacySourceNames[lower]; found {
		return system, nil
	}
	return SourceUnknown, fmt.Errorf("unknown source system: %q", value)
}

// MarshalJSON method serializes the system as its flat lowercase token.
func (s SourceSystem) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON method accepts current and legacy spellings.
func (s *SourceSystem) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	system, err := ParseSourceSystem(raw)
	if err != nil {
		return err
	}
	*s = system
	return nil
}

// Visibility of the repository an event belongs to.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityUnknown Visibility = "unknown"
)

// Actor is the person the packet is about.
type Actor struct {
	Login string `json:"login"`
	ID    *int64 `json:"id,omitempty"`
}

// Repo locates the repository an event belongs to.
type Repo struct {
	FullName   string     `json:"full_name"`
	HTMLURL    string     `json:"html_url,omitempty"`
	Visibility Visibility `json:"visibility"`
}

// Link is a labeled URL attached to an event. Order is preserved.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Source records which system produced an event and how to find it again.
type Source struct {
	System   SourceSystem `json:"system"`
	URL      string       `json:"url,omitempty"`
	OpaqueID string       `json:"opaque_id,omitempty"`
}

// EventEnvelope is the canonical, immutable record of a single activity event.
// Its id is a pure function of the source parts it was built from.
type EventEnvelope struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      Actor     `json:"actor"`
	Repo       Repo      `json:"repo"`

	PullRequest *PullRequestPayload `json:"pull_request,omitempty"`
	Review      *ReviewPayload      `json:"review,omitempty"`
	Manual      *ManualPayload      `json:"manual,omitempty"`

	Tags   []string `json:"tags,omitempty"`
	Links  []Link   `json:"links,omitempty"`
	Source Source   `json:"source"`
}

// PullRequestState of a pull-request payload.
type PullRequestState string

const (
	PRStateOpen    PullRequestState = "open"
	PRStateClosed  PullRequestState = "closed"
	PRStateMerged  PullRequestState = "merged"
	PRStateUnknown PullRequestState = "unknown"
)

// PullRequestPayload carries the pull-request variant.
type PullRequestPayload struct {
	Number           int                `json:"number"`
	Title            string             `json:"title"`
	State            PullRequestState   `json:"state"`
	CreatedAt        time.Time          `json:"created_at"`
	MergedAt         *time.Time         `json:"merged_at,omitempty"`
	Additions        *int               `json:"additions,omitempty"`
	Deletions        *int               `json:"deletions,omitempty"`
	ChangedFiles     *int               `json:"changed_files,omitempty"`
	TouchedPathsHint []string           `json:"touched_paths_hint,omitempty"`
	SubWindow        *window.TimeWindow `json:"sub_window,omitempty"`
}

// ReviewState of a review payload.
type ReviewState string

const (
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewCommented        ReviewState = "commented"
	ReviewDismissed        ReviewState = "dismissed"
	ReviewUnknown          ReviewState = "unknown"
)

// ReviewPayload carries the review variant.
type ReviewPayload struct {
	PullNumber int         `json:"pull_number"`
	PullTitle  string      `json:"pull_title"`
	State      ReviewState `json:"state"`
}

// ManualType classifies a manually recorded event.
type ManualType string

const (
	ManualIncident  ManualType = "incident"
	ManualDesign    ManualType = "design"
	ManualMentoring ManualType = "mentoring"
	ManualTalk      ManualType = "talk"
	ManualMigration ManualType = "migration"
	ManualOncall    ManualType = "oncall"
	ManualOther     ManualType = "other"
)

// ManualPayload carries the manual variant: work recorded by the user rather
// than collected from a source system.
type ManualPayload struct {
	ManualType  ManualType         `json:"manual_type"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Impact      string             `json:"impact,omitempty"`
	Date        *time.Time         `json:"date,omitempty"`
	DateRange   *window.TimeWindow `json:"date_range,omitempty"`
}

// Title method returns the user-facing title of the payload carried by the
// envelope, regardless of its kind.
func (e EventEnvelope) Title() string {
	switch {
	case e.PullRequest != nil:
		return e.PullRequest.Title
	case e.Review != nil:
		return e.Review.PullTitle
	case e.Manual != nil:
		return e.Manual.Title
	}
	return ""
}

// Validate method checks the envelope invariants: a known kind, a payload
// matching that kind, and exactly one payload present.
func (e EventEnvelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event has no id")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("event %s: unknown kind %q", shortID(e.ID), e.Kind)
	}

	var payloads int
	for _, present := range []bool{e.PullRequest != nil, e.Review != nil, e.Manual != nil} {
		if present {
			payloads++
		}
	}
	if payloads != 1 {
		return fmt.Errorf("event %s: expected exactly one payload, found %d", shortID(e.ID), payloads)
	}

	var matches bool
	switch e.Kind {
	case KindPullRequest:
		matches = e.PullRequest != nil
	case KindReview:
		matches = e.Review != nil
	case KindManual:
		matches = e.Manual != nil
	}
	if !matches {
		return fmt.Errorf("event %s: payload doesn't match kind %q", shortID(e.ID), e.Kind)
	}
	return nil
}

// NormalizeTags method sorts tags so serialization is deterministic.
func (e *EventEnvelope) NormalizeTags() {
	sort.Strings(e.Tags)
}

// SortEvents function orders events chronologically, ties broken by id. This
// is the persistence order of the ledger.
func SortEvents(events []EventEnvelope) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].ID < events[j].ID
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
