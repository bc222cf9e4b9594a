package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:     "checkpoints",
	Aliases: []string{"cp"},
	Short:   "Manage saved run checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		tokens, err := app.Engine.Checkpoints(ctx)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, token := range tokens {
			state, err := app.Engine.Inspect(ctx, token)
			if err != nil {
				fmt.Fprintf(w, "%s\t(unreadable: %v)\n", token, err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\tstep %d\n", token, state.GraphName, state.CurrentNodeID, state.Step)
		}
		return nil
	},
}

var checkpointsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		state, err := app.Engine.Inspect(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete checkpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		for _, token := range args {
			if err := app.Engine.DeleteCheckpoint(ctx, token); err != nil {
				return fmt.Errorf("%s: %w", token, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", token)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd, checkpointsShowCmd, checkpointsDeleteCmd)
}
