package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available recipes",
		Args:  cobra.NoArgs,
		RunE:  cmdList,
	}
}

func cmdList(cmd *cobra.Command, args []string) error {
	setup(cpath)

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	names, err := reg.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}
