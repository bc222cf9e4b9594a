package main

import (
	"context"
	"fmt"

	"github.com/aretw0/lattice/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <graph>",
	Short: "Export a graph as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart of the graph. With --run, the node where that run
stopped is highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		ctx := context.Background()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		g, err := app.Graph(args[0])
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if runID != "" {
			state, err := app.Engine.Inspect(ctx, runID)
			if err != nil {
				return err
			}
			overlay = &graph.Overlay{CurrentNode: state.CurrentNodeID}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("run", "", "Highlight the position of this run")
}
