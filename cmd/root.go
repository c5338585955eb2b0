/*
Copyright © 2025 Dean
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "packsight",
	Short: "Packaging intelligence pipelines",
	Long: `Packsight discovers competitor products on marketplace category pages,
analyzes their packaging, and generates rebrand concepts. Work runs as
multi-step pipeline jobs consumed by a worker pool; the serve command
exposes the job lifecycle over HTTP.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
