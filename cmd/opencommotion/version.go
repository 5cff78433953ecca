package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masltov-creations/opencommotion"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of opencommotion",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("opencommotion version %s\n", strings.TrimSpace(opencommotion.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
