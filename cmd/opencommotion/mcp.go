package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/masltov-creations/opencommotion/internal/adapters/mcp"
	"github.com/masltov-creations/opencommotion/internal/cli"
	"github.com/masltov-creations/opencommotion/internal/config"
	"github.com/masltov-creations/opencommotion/internal/logging"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP server over stdio.
This lets agent runtimes submit turns and manage scene snapshots as tools.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		logger := logging.New(logging.ParseLevel(cfg.LogLevel))
		log.SetOutput(os.Stderr)

		engine, cleanup, err := cli.BuildEngine(cfg, logger, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := cleanup(); err != nil {
				logger.Warn("backend cleanup failed", "err", err)
			}
		}()

		srv := mcp.NewServer(engine.Coordinator())
		logger.Info("mcp server starting (stdio)")
		if err := srv.ServeStdio(); err != nil {
			logger.Error("mcp server execution failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
