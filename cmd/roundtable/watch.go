package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/roundtable/pkg/events"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session-id>",
		Short: "stream a running session's events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			ch, unsubscribe, err := rt.Runtime.Subscribe(sessionID)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer unsubscribe()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					printEvent(ev)
					if ev.Kind == events.KindRefinementComplete {
						return nil
					}
				}
			}
		},
	}
}

func printEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindSessionCreated:
		fmt.Printf("[session_created] title=%v\n", ev.Payload["title"])
	case events.KindRoundtableGenerating:
		fmt.Printf("[roundtable_generating] %v\n", ev.Payload["message"])
	case events.KindRoundtableGenerated:
		fmt.Printf("[roundtable_generated] moderator_focus=%v participants=%v\n", ev.Payload["moderator_focus"], ev.Payload["participants"])
	case events.KindIterationStart:
		fmt.Printf("[iteration_start] iteration=%v/%v\n", ev.Payload["iteration"], ev.Payload["max_iterations"])
	case events.KindCriticReviewStart:
		fmt.Printf("[critic_review_start] critic=%v\n", ev.Payload["critic_name"])
	case events.KindCriticReviewComplete:
		fmt.Printf("[critic_review_complete] critic=%v issues=%v severities=%v\n",
			ev.Payload["critic_name"], ev.Payload["issues_count"], ev.Payload["counts_by_severity"])
	case events.KindConvergenceCheck:
		fmt.Printf("[convergence_check] iteration=%v converged=%v reason=%v\n",
			ev.Payload["iteration"], ev.Payload["converged"], ev.Payload["reason"])
	case events.KindModeratorStart:
		fmt.Printf("[moderator_start] iteration=%v\n", ev.Payload["iteration"])
	case events.KindModeratorComplete:
		fmt.Printf("[moderator_complete] new_version=%v\n", ev.Payload["new_version"])
	case events.KindRefinementComplete:
		fmt.Printf("[refinement_complete] final_version=%v converged=%v stopped_by=%v\n",
			ev.Payload["final_version"], ev.Payload["converged"], ev.Payload["stopped_by"])
	case events.KindLog:
		fmt.Printf("[log:%v] %v: %v\n", ev.Payload["level"], ev.Payload["source"], ev.Payload["message"])
	default:
		fmt.Printf("[%s] %v\n", ev.Kind, ev.Payload)
	}
}
