// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cobraext

// Global flags
const (
	VerboseFlagName        = "verbose"
	VerboseFlagShorthand   = "v"
	VerboseFlagDescription = "verbose mode"
)

// Flag names and descriptions used by CLI commands
const (
	APIBaseFlagName        = "api-base"
	APIBaseFlagDescription = "override the source API base URL"

	BundleProfileFlagName        = "bundle-profile"
	BundleProfileFlagDescription = "disclosure profile for the bundle manifest (internal, manager or public)"

	DirFlagName        = "dir"
	DirFlagDescription = "directory containing the foreign run to import"

	IncludeReviewsFlagName        = "include-reviews"
	IncludeReviewsFlagDescription = "also collect code reviews authored by the user"

	ModeFlagName        = "mode"
	ModeFlagDescription = "collection lens: merged or created pull requests"

	NarrativeEndpointFlagName        = "narrative-endpoint"
	NarrativeEndpointFlagDescription = "OpenAI-compatible endpoint used to draft workstream summaries. Can also be set with %s"

	NarrativeModelFlagName        = "narrative-model"
	NarrativeModelFlagDescription = "model requested from the narrative endpoint"

	OutFlagName        = "out"
	OutFlagDescription = "root directory for run outputs"

	RedactKeyFlagName        = "redact-key"
	RedactKeyFlagDescription = "key for stable aliasing in redacted profiles. Can also be set with %s"

	RegenFlagName        = "regen"
	RegenFlagDescription = "regenerate the suggested workstreams file"

	RunDirFlagName        = "run-dir"
	RunDirFlagDescription = "existing run directory to operate on"

	SinceFlagName        = "since"
	SinceFlagDescription = "start of the date window (inclusive, YYYY-MM-DD)"

	ThrottleFlagName        = "throttle-ms"
	ThrottleFlagDescription = "minimum milliseconds between source API requests"

	UntilFlagName        = "until"
	UntilFlagDescription = "end of the date window (exclusive, YYYY-MM-DD)"

	UserFlagName        = "user"
	UserFlagDescription = "login of the user the packet is about"

	ZipFlagName        = "zip"
	ZipFlagDescription = "archive the bundle next to the run artifacts"
)
