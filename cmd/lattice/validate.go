package main

import (
	"fmt"
	"os"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/dsl"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Validate graph definitions",
	Long: `Parses and compiles graph files or directories without running them.
Without arguments the configured graph directory is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Graphs == "" {
				return fmt.Errorf("no graph directory configured and no path given")
			}
			paths = []string{cfg.Graphs}
		}

		w := cmd.OutOrStdout()
		for _, path := range paths {
			graphs, err := validatePath(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			for _, g := range graphs {
				fmt.Fprintf(w, "ok  %s (%d nodes, %d edges)\n", g.Name(), len(g.Nodes()), len(g.Edges()))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validatePath(path string) ([]*domain.Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	loader := dsl.NewLoader()
	if !info.IsDir() {
		g, err := loader.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []*domain.Graph{g}, nil
	}

	catalog, err := loader.LoadDir(path)
	if err != nil {
		return nil, err
	}
	var graphs []*domain.Graph
	for _, name := range catalog.Graphs() {
		g, err := catalog.Graph(name)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
