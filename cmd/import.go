// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic/shiplog/internal/cobraext"
	"github.com/elastic/shiplog/internal/engine"
	"github.com/elastic/shiplog/internal/signal"
)

const importLongDescription = `Use this command to import a foreign run directory (e.g. a shared bundle) and render it under a new run id.

When the directory carries a bundle manifest, every declared checksum is verified before anything is read; an integrity mismatch aborts the import with only a failure marker written.`

func setupImportCommand() *cobraext.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a foreign run directory",
		Long:  importLongDescription,
		RunE:  importCommandAction,
	}
	addRenderFlags(cmd)
	cmd.Flags().String(cobraext.DirFlagName, "", cobraext.DirFlagDescription)
	cmd.Flags().String(cobraext.OutFlagName, "out", cobraext.OutFlagDescription)
	cmd.Flags().Bool(cobraext.RegenFlagName, false, cobraext.RegenFlagDescription)
	cmd.MarkFlagRequired(cobraext.DirFlagName)

	return cobraext.NewCommand(cmd)
}

func importCommandAction(cmd *cobra.Command, args []string) error {
	dir, err := cmd.Flags().GetString(cobraext.DirFlagName)
	if err != nil {
		return cobraext.FlagParsingError(err, cobraext.DirFlagName)
	}
	out, err := cmd.Flags().GetString(cobraext.OutFlagName)
	if err != nil {
		return cobraext.FlagParsingError(err, cobraext.OutFlagName)
	}
	cmd.Printf("Import run from %s\n", dir)

	var opts engine.Options
	if err := addRenderOptions(cmd, &opts); err != nil {
		return err
	}

	ctx, stop := signal.Enable(cmd.Context())
	defer stop()

	runDir, err := newEngine(out, nil).Import(ctx, dir, opts)
	if err != nil {
		return err
	}

	cmd.Printf("Run written to %s\n", runDir)
	cmd.Println("Done")
	return nil
}
