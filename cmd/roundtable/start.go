package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/roundtable/pkg/planner"
	"github.com/codeready-toolchain/roundtable/pkg/session"
)

func newStartCmd() *cobra.Command {
	var (
		title              string
		content            string
		contentFile        string
		goal               string
		documentType       string
		maxIterations      int
		deltaThreshold      float64
		numParticipants    int
		preset             string
		participantStyle   string
		modelStrategy      string
		modelPool          []string
		primaryModel       string
		forceMaxIterations bool
		stopOnNoHighIssues bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a new refinement session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			body := content
			if contentFile != "" {
				raw, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read --content-file: %w", err)
				}
				body = string(raw)
			}

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			req := session.StartRequest{
				Title:              title,
				Content:            body,
				Goal:               goal,
				DocumentType:       documentType,
				MaxIterations:      maxIterations,
				DeltaThreshold:     deltaThreshold,
				ForceMaxIterations: forceMaxIterations,
				NumParticipants:    numParticipants,
				Preset:             planner.Preset(preset),
				ParticipantStyle:   participantStyle,
				ModelStrategy:      planner.ModelStrategy(modelStrategy),
				ModelPool:          modelPool,
				PrimaryModel:       primaryModel,
			}
			if cmd.Flags().Changed("stop-on-no-high-issues") {
				req.StopOnNoHighIssues = &stopOnNoHighIssues
			}

			sessionID, err := rt.Runtime.Start(ctx, req)
			if err != nil {
				return fmt.Errorf("start session: %w", err)
			}
			fmt.Println(sessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "document title (required)")
	cmd.Flags().StringVar(&content, "content", "", "document content")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "path to a file holding the document content, overrides --content")
	cmd.Flags().StringVar(&goal, "goal", "", "the goal reviewers should evaluate the document against")
	cmd.Flags().StringVar(&documentType, "document-type", "document", "document type, e.g. prd, code-review, architecture")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 5, "maximum number of refinement iterations")
	cmd.Flags().Float64Var(&deltaThreshold, "delta-threshold", 0, "minimum improvement delta to keep iterating (0 selects the built-in default, 0.05)")
	cmd.Flags().BoolVar(&forceMaxIterations, "force-max-iterations", false, "always run to max_iterations, ignoring early convergence")
	cmd.Flags().BoolVar(&stopOnNoHighIssues, "stop-on-no-high-issues", true, "stop once no reviewer reports a high-severity issue")
	cmd.Flags().IntVar(&numParticipants, "num-participants", 3, "number of reviewer participants (clamped to [2,6])")
	cmd.Flags().StringVar(&preset, "preset", "", "built-in reviewer panel preset, e.g. prd, code-review, architecture, business-strategy")
	cmd.Flags().StringVar(&participantStyle, "participant-style", "", "freeform steer for the meta-planner's participant generation")
	cmd.Flags().StringVar(&modelStrategy, "model-strategy", "uniform", "uniform or diverse model assignment across participants")
	cmd.Flags().StringSliceVar(&modelPool, "model-pool", nil, "round-robin model pool, used when --model-strategy=diverse")
	cmd.Flags().StringVar(&primaryModel, "model", "", "primary model for uniform-strategy participants (and the diverse pool when --model-pool is empty); the moderator uses the configured llm.model")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}
