// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDFormat = "20060102T150405Z"

// HashParts function derives a stable identifier from an ordered list of parts.
// Parts are joined with a newline separator before hashing, so the boundary
// between parts is part of the identity: ["a","bc"] and ["ab","c"] hash differently.
func HashParts(parts ...string) string {
	digest := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(digest[:])
}

// EventID function derives the identifier of an event from its source parts.
func EventID(tag, source, repo, opaqueID string, extra ...string) string {
	parts := append([]string{tag, source, repo, opaqueID}, extra...)
	return HashParts(parts...)
}

// WorkstreamID function derives the identifier of a workstream from its cluster key.
func WorkstreamID(clusterKind, clusterKey string) string {
	return HashParts("workstream", clusterKind, clusterKey)
}

// NewRunID function builds a timestamp-based run identifier from the given clock.
func NewRunID(now time.Time) string {
	return now.UTC().Format(runIDFormat)
}

// UniqueRunID function builds a run identifier that doesn't collide with the
// exists predicate. A collision gets a random suffix appended, so two flows
// started within the same second still write to distinct run directories.
func UniqueRunID(now time.Time, exists func(string) bool) string {
	runID := NewRunID(now)
	if exists == nil || !exists(runID) {
		return runID
	}
	return runID + "-" + uuid.NewString()[:8]
}
