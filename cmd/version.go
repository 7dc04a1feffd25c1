// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic/shiplog/internal/cobraext"
	"github.com/elastic/shiplog/internal/version"
)

func setupVersionCommand() *cobraext.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		RunE:  versionCommandAction,
	}
	return cobraext.NewCommand(cmd)
}

func versionCommandAction(cmd *cobra.Command, args []string) error {
	if version.Tag != "" {
		cmd.Printf("shiplog %s (build: %s at %s)\n", version.Tag, version.CommitHash, version.BuildTime)
		return nil
	}
	cmd.Printf("shiplog (build: %s at %s)\n", version.CommitHash, version.BuildTime)
	return nil
}
