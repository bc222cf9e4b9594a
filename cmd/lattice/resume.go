package main

import (
	"context"

	"github.com/aretw0/lattice/internal/cli"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id> [input]",
	Short: "Continue a checkpointed run",
	Long: `Resumes the run saved under run-id. The optional input is appended as a user
message before the run continues. The graph defaults to the one recorded in the checkpoint.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		graphRef, _ := cmd.Flags().GetString("graph")

		input, err := inputArg(args)
		if err != nil {
			return err
		}

		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()

		app, err := newApp(sc, cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		if graphRef == "" {
			state, err := app.Engine.Inspect(sc, args[0])
			if err != nil {
				return err
			}
			graphRef = state.GraphName
		}
		g, err := app.Graph(graphRef)
		if err != nil {
			return err
		}

		out := app.Engine.Resume(sc, g, args[0], input)
		return report(cmd, out, sc)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().String("graph", "", "Graph file or name (default: the checkpoint's graph)")
	addOutputFlags(resumeCmd)
}
