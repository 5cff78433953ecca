package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opencommotion",
	Short: "Scene synchronization engine for narrated visual sessions",
	Long: `OpenCommotion keeps a revisioned scene graph in sync across agents and
viewers: agents submit high-level visual strokes, the engine compiles them
into deterministic patch batches, commits them atomically, and fans the
result out to live subscribers.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to config file (YAML)")
}
