package main

import (
	"fmt"
	"os"

	"github.com/fentz26/wfsandbox/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wfsandbox",
	Short: "wfsandbox - per-task sandboxes for workflow engines",
	Long: `wfsandbox runs workflow task commands inside private working directories,
staging workflow:// references to the outputs of earlier tasks before execution.`,
	SilenceUsage: true,
}

var (
	apiAddr     string
	configPath  string
	scratchRoot string
	dbPath      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7467", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (.yaml or .toml, default ~/.wfsandbox/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&scratchRoot, "scratch-root", "", "Override the scratch root")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Override the SQLite task registry path")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromHome()
	}
	if err != nil {
		return nil, err
	}

	if scratchRoot != "" {
		cfg.ScratchRoot = scratchRoot
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
