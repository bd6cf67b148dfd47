package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/render"
	"github.com/spachava753/trialkit/internal/session"
	"github.com/spachava753/trialkit/internal/stimulus"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <session.yaml>",
		Short: "Load a session and its stimuli without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, trials, err := session.Load(args[0])
			if err != nil {
				return err
			}
			if err := stimulus.NewLoader(render.DefaultCanvas()).Preload(ctx, cfg.StimuliDir, trials); err != nil {
				return err
			}

			counts := make(map[models.Plugin]int)
			for _, t := range trials {
				counts[t.Plugin]++
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d trials\n", args[0], len(trials))
			for _, p := range []models.Plugin{models.PluginHTMLKeyboard, models.PluginImageKeyboard, models.PluginCanvasKeyboard} {
				if counts[p] > 0 {
					fmt.Fprintf(out, "  %s: %d\n", p, counts[p])
				}
			}
			return nil
		},
	}
}
