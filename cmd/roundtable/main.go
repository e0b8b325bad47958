// roundtable is the CLI demonstration harness for the Roundtable Entry
// Point: it wires pkg/config and pkg/roundtable together the way
// cmd/tarsy/main.go wires database.NewClient and the service layer, but
// fronts the result with a spf13/cobra command tree instead of gin routes,
// since the HTTP surface is explicitly out of this module's core scope.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/roundtable/pkg/config"
	"github.com/codeready-toolchain/roundtable/pkg/roundtable"
)

var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "roundtable",
		Short: "Roundtable — multi-reviewer iterative document refinement",
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"),
		"path to configuration directory (expects roundtable.yaml and .env)")

	rootCmd.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newContinueCmd(),
		newDeleteCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// bootstrap loads .env and roundtable.yaml from configDir and assembles a
// Result. Every subcommand calls this first.
func bootstrap(ctx context.Context) (*roundtable.Result, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envPath, err)
	}

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("initialize configuration: %w", err)
	}

	rt, err := roundtable.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("assemble roundtable: %w", err)
	}
	return rt, nil
}
