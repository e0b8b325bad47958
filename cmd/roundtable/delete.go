package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "permanently remove a terminal session and its persisted artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Runtime.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Println("deleted")
			return nil
		},
	}
}
