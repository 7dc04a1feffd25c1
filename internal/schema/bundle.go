// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package schema

import "fmt"

// Profile selects a disclosure level for rendered artifacts.
type Profile string

const (
	ProfileInternal Profile = "internal"
	ProfileManager  Profile = "manager"
	ProfilePublic   Profile = "public"
)

// ParseProfile function resolves a profile name.
func ParseProfile(value string) (Profile, error) {
	switch Profile(value) {
	case ProfileInternal, ProfileManager, ProfilePublic:
		return Profile(value), nil
	}
	return "", fmt.Errorf("unknown profile: %q", value)
}

// BundleFile is one entry of a bundle manifest.
type BundleFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// BundleManifest lists the files safe to share at a given profile, with
// integrity checksums.
type BundleManifest struct {
	RunID   string       `json:"run_id"`
	Profile Profile      `json:"profile"`
	Files   []BundleFile `json:"files"`
}
