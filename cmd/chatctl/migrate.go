package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.deps.migrate == nil {
				return fmt.Errorf("store does not support migrations")
			}
			applied, err := a.deps.migrate(cmd.Context())
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.printJSON(map[string]any{"applied": applied})
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.stdout, "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(a.stdout, "applied %s\n", v)
			}
			return nil
		},
	}
}
