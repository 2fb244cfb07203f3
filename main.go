package main

import (
	"fmt"
	"os"

	"options-analyzer/internal/cli"
	"options-analyzer/internal/config"
	"options-analyzer/internal/logging"
)

func main() {
	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
