package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/lattice"
	"github.com/aretw0/lattice/internal/cli"
	"github.com/aretw0/lattice/internal/presentation/tui"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run <graph> [input]",
	Short: "Run a graph once",
	Long: `Runs a graph from its start node. The graph is a YAML file or the name of a graph
in the configured directory. The input is a JSON object or plain text.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run-id")

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

		g, err := app.Graph(args[0])
		if err != nil {
			return err
		}

		var opts []lattice.RunOption
		if runID != "" {
			opts = append(opts, lattice.WithRunID(runID))
		}
		out := app.Engine.Run(sc, g, input, opts...)
		return report(cmd, out, sc)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("run-id", "", "Run id to use instead of a generated one")
	addOutputFlags(runCmd)
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Print the outcome as JSON")
	cmd.Flags().Bool("plain", false, "Print the outcome as plain text")
}

func inputArg(args []string) (any, error) {
	if len(args) < 2 {
		return nil, nil
	}
	return cli.ParseInput(args[1])
}

// outputFormat picks JSON or plain output when asked, and rich output on terminals.
func outputFormat(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetBool("json"); v {
		return cli.FormatJSON
	}
	if v, _ := cmd.Flags().GetBool("plain"); v {
		return cli.FormatPlain
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return cli.FormatRich
	}
	return cli.FormatPlain
}

// report prints the outcome and turns a failed run into a command error.
func report(cmd *cobra.Command, out domain.Outcome, sc *cli.SignalContext) error {
	format := outputFormat(cmd)
	if format == cli.FormatRich {
		tui.PrintBanner(cmd.OutOrStdout())
	}
	if err := cli.PrintOutcome(cmd.OutOrStdout(), out, format); err != nil {
		return err
	}
	if sig := sc.Signal(); sig != nil {
		return fmt.Errorf("run %s interrupted by %v", out.RunID, sig)
	}
	if !out.Succeeded() {
		return fmt.Errorf("run %s %s", out.RunID, out.Status)
	}
	return nil
}
