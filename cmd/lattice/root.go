package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/lattice/internal/cli"
	"github.com/aretw0/lattice/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Lattice runs agent strategy graphs",
	Long: `Lattice executes strategy graphs of model calls, tool calls and transforms,
with a shared response cache, checkpoints and pluggable observers.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a lattice.yaml configuration file")
	rootCmd.PersistentFlags().StringSlice("env", nil, "Env files to load (default: .env when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("graphs", "", "Override the directory of graph definitions")
	rootCmd.PersistentFlags().String("tools", "", "Override the tools file")
}

// loadConfig reads the configuration named by the persistent flags and applies the
// flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringSlice("env")

	cfg, err := config.Load(path, envFiles...)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("graphs"); v != "" {
		cfg.Graphs = v
	}
	if v, _ := cmd.Flags().GetString("tools"); v != "" {
		cfg.Tools = v
	}
	return cfg, nil
}

func newApp(ctx context.Context, cmd *cobra.Command, opts ...cli.AppOption) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(ctx, cfg, opts...)
}
