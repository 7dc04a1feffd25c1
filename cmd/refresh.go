// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic/shiplog/internal/cobraext"
	"github.com/elastic/shiplog/internal/signal"
)

const refreshLongDescription = `Use this command to re-ingest an existing run with the same window.

The event ledger and coverage manifest are replaced. The curated workstreams file is never modified; the suggested file is only rebuilt with --regen.`

func setupRefreshCommand() *cobraext.Command {
	cmd := &cobra.Command{
		Use:   "refresh <source>",
		Short: "Re-ingest an existing run",
		Long:  refreshLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE:  refreshCommandAction,
	}
	addIngestFlags(cmd)
	addRenderFlags(cmd)
	cmd.Flags().String(cobraext.RunDirFlagName, "", cobraext.RunDirFlagDescription)
	cmd.Flags().Bool(cobraext.RegenFlagName, false, cobraext.RegenFlagDescription)
	cmd.MarkFlagRequired(cobraext.RunDirFlagName)

	return cobraext.NewCommand(cmd)
}

func refreshCommandAction(cmd *cobra.Command, args []string) error {
	cmd.Printf("Refresh run from %s\n", args[0])

	opts, err := ingestOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	runDir, err := cmd.Flags().GetString(cobraext.RunDirFlagName)
	if err != nil {
		return cobraext.FlagParsingError(err, cobraext.RunDirFlagName)
	}
	narrativeBackend, err := narrativeBackendFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.Enable(cmd.Context())
	defer stop()

	if err := newEngine("", narrativeBackend).Refresh(ctx, args[0], runDir, opts); err != nil {
		printCoverageSummary(cmd, runDir)
		return err
	}

	printCoverageSummary(cmd, runDir)
	cmd.Println("Done")
	return nil
}
