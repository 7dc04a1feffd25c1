// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package main

import (
	"os"

	"github.com/elastic/shiplog/cmd"
	"github.com/elastic/shiplog/internal/engine"
)

func main() {
	rootCmd := cmd.RootCmd()
	rootCmd.SilenceErrors = true // Silence errors so we handle them here.
	err := rootCmd.Execute()
	if engine.IsCancelled(err) {
		rootCmd.Println("interrupted")
		os.Exit(130)
	}
	if err != nil {
		rootCmd.PrintErrln(rootCmd.ErrPrefix(), err)
		os.Exit(1)
	}
}
