// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package cobraext

import (
	"github.com/spf13/cobra"
)

// Command wraps a cobra.Command with shiplog-specific metadata.
type Command struct {
	*cobra.Command

	longDesc string
}

// NewCommand creates a new Command.
func NewCommand(cmd *cobra.Command) *Command {
	c := Command{
		Command:  cmd,
		longDesc: cmd.Long,
	}
	return &c
}

// Name returns the name of the shiplog command.
func (c *Command) Name() string {
	return c.Command.Name()
}

// Short returns a short description for the shiplog command.
func (c *Command) Short() string {
	return c.Command.Short
}

// Long returns a long description for the shiplog command.
func (c *Command) Long() string {
	return c.longDesc
}

// CommandAction defines the signature of a cobra command action function.
type CommandAction func(cmd *cobra.Command, args []string) error

// ComposeCommandActions runs the given command actions in order.
func ComposeCommandActions(cmd *cobra.Command, args []string, actions ...CommandAction) error {
	for _, action := range actions {
		err := action(cmd, args)
		if err != nil {
			return err
		}
	}
	return nil
}
