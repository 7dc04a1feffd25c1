// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/elastic/shiplog/internal/cobraext"
	"github.com/elastic/shiplog/internal/engine"
	"github.com/elastic/shiplog/internal/environment"
	"github.com/elastic/shiplog/internal/ingest"
	"github.com/elastic/shiplog/internal/ingest/githubsource"
	"github.com/elastic/shiplog/internal/ledger"
	"github.com/elastic/shiplog/internal/narrative"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
)

var narrativeEndpointEnv = environment.WithShiplogPrefix("NARRATIVE_ENDPOINT")

func newEngine(out string, narrativeBackend *narrative.Backend) *engine.Engine {
	return &engine.Engine{
		Out: out,
		Collectors: map[schema.SourceSystem]ingest.Collector{
			schema.SourceGitHub: githubsource.New(),
		},
		Narrative: narrativeBackend,
	}
}

func narrativeBackendFromFlags(cmd *cobra.Command) (*narrative.Backend, error) {
	endpoint, err := cmd.Flags().GetString(cobraext.NarrativeEndpointFlagName)
	if err != nil {
		return nil, cobraext.FlagParsingError(err, cobraext.NarrativeEndpointFlagName)
	}
	if endpoint == "" {
		endpoint = os.Getenv(narrativeEndpointEnv)
	}
	if endpoint == "" {
		return nil, nil
	}
	model, err := cmd.Flags().GetString(cobraext.NarrativeModelFlagName)
	if err != nil {
		return nil, cobraext.FlagParsingError(err, cobraext.NarrativeModelFlagName)
	}
	return narrative.NewBackend(endpoint, model), nil
}

func windowFromFlags(cmd *cobra.Command) (window.TimeWindow, error) {
	sinceRaw, err := cmd.Flags().GetString(cobraext.SinceFlagName)
	if err != nil {
		return window.TimeWindow{}, cobraext.FlagParsingError(err, cobraext.SinceFlagName)
	}
	untilRaw, err := cmd.Flags().GetString(cobraext.UntilFlagName)
	if err != nil {
		return window.TimeWindow{}, cobraext.FlagParsingError(err, cobraext.UntilFlagName)
	}

	since, err := time.Parse(window.DateFormat, sinceRaw)
	if err != nil {
		return window.TimeWindow{}, cobraext.FlagParsingError(err, cobraext.SinceFlagName)
	}
	until, err := time.Parse(window.DateFormat, untilRaw)
	if err != nil {
		return window.TimeWindow{}, cobraext.FlagParsingError(err, cobraext.UntilFlagName)
	}
	return window.New(since, until)
}

func redactKeyFromFlags(cmd *cobra.Command) (string, error) {
	key, err := cmd.Flags().GetString(cobraext.RedactKeyFlagName)
	if err != nil {
		return "", cobraext.FlagParsingError(err, cobraext.RedactKeyFlagName)
	}
	if key == "" {
		key = os.Getenv(engine.RedactKeyEnv)
	}
	return key, nil
}

func bundleProfileFromFlags(cmd *cobra.Command) (schema.Profile, error) {
	raw, err := cmd.Flags().GetString(cobraext.BundleProfileFlagName)
	if err != nil {
		return "", cobraext.FlagParsingError(err, cobraext.BundleProfileFlagName)
	}
	if raw == "" {
		return schema.ProfileInternal, nil
	}
	return schema.ParseProfile(raw)
}

// addRenderFlags registers the flags shared by every flow that renders and
// bundles artifacts.
func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().String(cobraext.RedactKeyFlagName, "", formatWithEnv(cobraext.RedactKeyFlagDescription, engine.RedactKeyEnv))
	cmd.Flags().String(cobraext.BundleProfileFlagName, string(schema.ProfileInternal), cobraext.BundleProfileFlagDescription)
	cmd.Flags().Bool(cobraext.ZipFlagName, false, cobraext.ZipFlagDescription)
}

// addIngestFlags registers the flags shared by collect and refresh.
func addIngestFlags(cmd *cobra.Command) {
	cmd.Flags().String(cobraext.UserFlagName, "", cobraext.UserFlagDescription)
	cmd.Flags().String(cobraext.SinceFlagName, "", cobraext.SinceFlagDescription)
	cmd.Flags().String(cobraext.UntilFlagName, "", cobraext.UntilFlagDescription)
	cmd.Flags().String(cobraext.ModeFlagName, string(ingest.ModeMerged), cobraext.ModeFlagDescription)
	cmd.Flags().Bool(cobraext.IncludeReviewsFlagName, false, cobraext.IncludeReviewsFlagDescription)
	cmd.Flags().Int(cobraext.ThrottleFlagName, 0, cobraext.ThrottleFlagDescription)
	cmd.Flags().String(cobraext.APIBaseFlagName, "", cobraext.APIBaseFlagDescription)
	cmd.Flags().String(cobraext.NarrativeEndpointFlagName, "", formatWithEnv(cobraext.NarrativeEndpointFlagDescription, narrativeEndpointEnv))
	cmd.Flags().String(cobraext.NarrativeModelFlagName, "", cobraext.NarrativeModelFlagDescription)

	for _, name := range []string{cobraext.UserFlagName, cobraext.SinceFlagName, cobraext.UntilFlagName} {
		cmd.MarkFlagRequired(name)
	}
}

func ingestOptionsFromFlags(cmd *cobra.Command) (engine.Options, error) {
	var opts engine.Options

	user, err := cmd.Flags().GetString(cobraext.UserFlagName)
	if err != nil {
		return opts, cobraext.FlagParsingError(err, cobraext.UserFlagName)
	}
	opts.User = user

	opts.Window, err = windowFromFlags(cmd)
	if err != nil {
		return opts, err
	}

	modeRaw, err := cmd.Flags().GetString(cobraext.ModeFlagName)
	if err != nil {
		return opts, cobraext.FlagParsingError(err, cobraext.ModeFlagName)
	}
	opts.Mode, err = ingest.ParseMode(modeRaw)
	if err != nil {
		return opts, err
	}

	opts.IncludeReviews, err = cmd.Flags().GetBool(cobraext.IncludeReviewsFlagName)
	if err != nil {
		return opts, cobraext.FlagParsingError(err, cobraext.IncludeReviewsFlagName)
	}

	throttleMs, err := cmd.Flags().GetInt(cobraext.ThrottleFlagName)
	if err != nil {
		return opts, cobraext.FlagParsingError(err, cobraext.ThrottleFlagName)
	}
	opts.Throttle = time.Duration(throttleMs) * time.Millisecond

	opts.APIBase, err = cmd.Flags().GetString(cobraext.APIBaseFlagName)
	if err != nil {
		return opts, cobraext.FlagParsingError(err, cobraext.APIBaseFlagName)
	}
	opts.Token = githubsource.AuthToken()

	return opts, addRenderOptions(cmd, &opts)
}

func addRenderOptions(cmd *cobra.Command, opts *engine.Options) error {
	var err error
	opts.RedactKey, err = redactKeyFromFlags(cmd)
	if err != nil {
		return err
	}
	opts.BundleProfile, err = bundleProfileFromFlags(cmd)
	if err != nil {
		return err
	}
	opts.Zip, err = cmd.Flags().GetBool(cobraext.ZipFlagName)
	if err != nil {
		return cobraext.FlagParsingError(err, cobraext.ZipFlagName)
	}
	if cmd.Flags().Lookup(cobraext.RegenFlagName) != nil {
		opts.Regen, err = cmd.Flags().GetBool(cobraext.RegenFlagName)
		if err != nil {
			return cobraext.FlagParsingError(err, cobraext.RegenFlagName)
		}
	}
	return nil
}

func formatWithEnv(description, envVar string) string {
	return strings.Replace(description, "%s", envVar, 1)
}

// printCoverageSummary renders the run's coverage slices as a table, so the
// terminal tells the same completeness story as the manifest.
func printCoverageSummary(cmd *cobra.Command, runDir string) {
	coverage, err := ledger.ReadCoverage(filepath.Join(runDir, ledger.CoverageFileName))
	if err != nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Window", "Results", "Fetched", "Status"})
	for _, slice := range coverage.Slices {
		status := "complete"
		if slice.IncompleteResults || slice.Fetched != slice.TotalCount {
			status = "partial"
		}
		t.AppendRow(table.Row{slice.Window.String(), slice.TotalCount, slice.Fetched, status})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	cmd.Printf("Coverage: %s\n", coverage.Completeness)
	for _, warning := range coverage.Warnings {
		cmd.Printf("Warning: %s\n", warning)
	}
}
