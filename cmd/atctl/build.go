package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var flags commandFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Print the bytes of a command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, terminator, err := flags.request()
			if err != nil {
				return err
			}
			wire, err := req.BuildAlloc(terminator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.Quote(string(wire)))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
