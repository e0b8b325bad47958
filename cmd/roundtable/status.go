package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "print a session's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Runtime.Status(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			fmt.Printf("session_id:        %s\n", result.SessionID)
			fmt.Printf("status:             %s\n", result.Status)
			fmt.Printf("current_iteration:  %d\n", result.CurrentIteration)
			fmt.Printf("max_iterations:     %d\n", result.MaxIterations)
			if result.FinalVersion > 0 {
				fmt.Printf("final_version:      %d\n", result.FinalVersion)
			}
			if result.StoppedBy != "" {
				fmt.Printf("stopped_by:         %s\n", result.StoppedBy)
			}
			if result.Error != "" {
				fmt.Printf("error:              %s\n", result.Error)
			}
			return nil
		},
	}
}
