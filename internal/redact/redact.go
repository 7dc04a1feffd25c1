// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package redact

import (
	"fmt"
	"strings"

	"github.com/elastic/shiplog/internal/schema"
)

const redactedPlaceholder = "[redacted]"

// Alias kinds stored in the cache.
const (
	kindRepo       = "repo"
	kindWorkstream = "workstream"
)

// ErrKeyRequired is returned when a profile needs aliasing but no redaction
// key is configured. The caller skips that profile with a warning; internal
// output is always produced.
var ErrKeyRequired = fmt.Errorf("profile requires a redaction key")

// RequiresKey function reports whether rendering the profile needs aliases.
func RequiresKey(profile schema.Profile) bool {
	return profile == schema.ProfilePublic
}

// Redactor projects events and workstreams through one profile.
type Redactor struct {
	profile schema.Profile
	aliaser *Aliaser
}

// New function builds a redactor. key may be empty for profiles that don't
// alias; cachePath may be empty to keep aliases in memory only.
func New(profile schema.Profile, key, cachePath string) (*Redactor, error) {
	switch profile {
	case schema.ProfileInternal, schema.ProfileManager, schema.ProfilePublic:
	default:
		return nil, fmt.Errorf("unknown profile: %q", profile)
	}

	r := &Redactor{profile: profile}
	if RequiresKey(profile) {
		if key == "" {
			return nil, ErrKeyRequired
		}
		aliaser, err := NewAliaser(key, cachePath)
		if err != nil {
			return nil, err
		}
		r.aliaser = aliaser
	}
	return r, nil
}

// Profile method returns the profile this redactor projects through.
func (r *Redactor) Profile() schema.Profile {
	return r.profile
}

// Persist method writes the alias cache if one is in use.
func (r *Redactor) Persist() error {
	if r.aliaser == nil {
		return nil
	}
	return r.aliaser.Persist()
}

// Events method returns redacted copies of the events. The input is never
// mutated: the ledger stays the unredacted source of truth.
func (r *Redactor) Events(events []schema.EventEnvelope) ([]schema.EventEnvelope, error) {
	if r.profile == schema.ProfileInternal {
		return events, nil
	}

	out := make([]schema.EventEnvelope, len(events))
	for i, event := range events {
		redacted, err := r.event(event)
		if err != nil {
			return nil, fmt.Errorf("can't redact event %s: %w", event.ID, err)
		}
		out[i] = redacted
	}
	return out, nil
}

func (r *Redactor) event(event schema.EventEnvelope) (schema.EventEnvelope, error) {
	out := event

	// Both manager and public drop link lists and path hints.
	out.Links = nil
	if out.PullRequest != nil {
		payload := *out.PullRequest
		payload.TouchedPathsHint = nil
		out.PullRequest = &payload
	}
	if out.Manual != nil {
		payload := *out.Manual
		payload.Description = ""
		payload.Impact = ""
		out.Manual = &payload
	}

	if r.profile == schema.ProfileManager {
		return out, nil
	}

	// Public: titles and anything that names a repository or links out.
	if out.PullRequest != nil {
		payload := *out.PullRequest
		payload.Title = redactedPlaceholder
		out.PullRequest = &payload
	}
	if out.Review != nil {
		payload := *out.Review
		payload.PullTitle = redactedPlaceholder
		out.Review = &payload
	}
	if out.Manual != nil {
		payload := *out.Manual
		payload.Title = redactedPlaceholder
		out.Manual = &payload
	}

	if out.Repo.FullName != "" {
		alias, err := r.aliaser.Alias(kindRepo, out.Repo.FullName)
		if err != nil {
			return schema.EventEnvelope{}, err
		}
		out.Repo.FullName = "repo-" + alias
	}
	out.Repo.HTMLURL = ""
	out.Source.URL = ""
	out.Source.OpaqueID = ""

	var tags []string
	for _, tag := range out.Tags {
		if strings.Contains(tag, "repo") {
			continue
		}
		tags = append(tags, tag)
	}
	out.Tags = tags

	return out, nil
}

// Workstreams method returns a redacted copy of the workstreams file.
func (r *Redactor) Workstreams(file schema.WorkstreamsFile) (schema.WorkstreamsFile, error) {
	if r.profile == schema.ProfileInternal {
		return file, nil
	}

	out := file
	out.Workstreams = make([]schema.Workstream, len(file.Workstreams))
	for i, ws := range file.Workstreams {
		redacted := ws
		if r.profile == schema.ProfilePublic {
			alias, err := r.aliaser.Alias(kindWorkstream, ws.Title)
			if err != nil {
				return schema.WorkstreamsFile{}, fmt.Errorf("can't redact workstream %q: %w", ws.ID, err)
			}
			redacted.Title = "ws-" + alias
			// Summaries are free text and may name repositories.
			redacted.Summary = ""

			var tags []string
			for _, tag := range ws.Tags {
				if strings.Contains(tag, "repo") {
					continue
				}
				tags = append(tags, tag)
			}
			redacted.Tags = tags
		}
		out.Workstreams[i] = redacted
	}
	return out, nil
}
