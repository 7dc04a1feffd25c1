// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic/shiplog/internal/cobraext"
	"github.com/elastic/shiplog/internal/signal"
)

const collectLongDescription = `Use this command to collect a user's activity from a source into a new run directory.

The collector slices the requested window adaptively around the source's search cap and records exactly what was queried and what may be missing in the coverage manifest. The event ledger and coverage manifest are written before anything derived from them.`

func setupCollectCommand() *cobraext.Command {
	cmd := &cobra.Command{
		Use:   "collect <source>",
		Short: "Collect activity into a new run",
		Long:  collectLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE:  collectCommandAction,
	}
	addIngestFlags(cmd)
	addRenderFlags(cmd)
	cmd.Flags().String(cobraext.OutFlagName, "out", cobraext.OutFlagDescription)
	cmd.Flags().Bool(cobraext.RegenFlagName, false, cobraext.RegenFlagDescription)

	return cobraext.NewCommand(cmd)
}

func collectCommandAction(cmd *cobra.Command, args []string) error {
	cmd.Printf("Collect %s activity\n", args[0])

	opts, err := ingestOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	out, err := cmd.Flags().GetString(cobraext.OutFlagName)
	if err != nil {
		return cobraext.FlagParsingError(err, cobraext.OutFlagName)
	}
	narrativeBackend, err := narrativeBackendFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.Enable(cmd.Context())
	defer stop()

	runDir, err := newEngine(out, narrativeBackend).Collect(ctx, args[0], opts)
	if runDir != "" {
		printCoverageSummary(cmd, runDir)
	}
	if err != nil {
		return err
	}

	cmd.Printf("Run written to %s\n", runDir)
	cmd.Println("Done")
	return nil
}
