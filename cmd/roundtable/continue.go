package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newContinueCmd() *cobra.Command {
	var additionalIterations int

	cmd := &cobra.Command{
		Use:   "continue <session-id>",
		Short: "extend an exhausted session's iteration budget and resume it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			newMax, err := rt.Runtime.Continue(ctx, args[0], additionalIterations)
			if err != nil {
				return fmt.Errorf("continue session: %w", err)
			}
			fmt.Printf("max_iterations: %d\n", newMax)
			return nil
		},
	}

	cmd.Flags().IntVar(&additionalIterations, "additional-iterations", 1, "number of iterations to add to the session's budget")
	return cmd
}
