// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic/shiplog/internal/cobraext"
	"github.com/elastic/shiplog/internal/engine"
)

const renderLongDescription = `Use this command to re-render the packets and bundle of an existing run without re-fetching.

Rendering reads the run's event ledger and coverage manifest, resolves workstreams (curated file first), projects them through the disclosure profiles and rewrites the packet files and bundle manifest.`

func setupRenderCommand() *cobraext.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render an existing run",
		Long:  renderLongDescription,
		RunE:  renderCommandAction,
	}
	addRenderFlags(cmd)
	cmd.Flags().String(cobraext.RunDirFlagName, "", cobraext.RunDirFlagDescription)
	cmd.Flags().Bool(cobraext.RegenFlagName, false, cobraext.RegenFlagDescription)
	cmd.MarkFlagRequired(cobraext.RunDirFlagName)

	return cobraext.NewCommand(cmd)
}

func renderCommandAction(cmd *cobra.Command, args []string) error {
	runDir, err := cmd.Flags().GetString(cobraext.RunDirFlagName)
	if err != nil {
		return cobraext.FlagParsingError(err, cobraext.RunDirFlagName)
	}
	cmd.Printf("Render run %s\n", runDir)

	var opts engine.Options
	if err := addRenderOptions(cmd, &opts); err != nil {
		return err
	}

	if err := newEngine("", nil).Render(runDir, opts); err != nil {
		return err
	}

	cmd.Println("Done")
	return nil
}
