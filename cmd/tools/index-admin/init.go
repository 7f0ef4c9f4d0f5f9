package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create missing indices with their mappings",
	Long: `Create the winkers, events and conversations indices when they do not
exist. Existing indices are left untouched.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	created, err := e.indexer().EnsureIndices(cmd.Context(), e.indices())
	if err != nil {
		return fmt.Errorf("ensure indices: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(created) == 0 {
		fmt.Fprintln(out, "all indices already exist")
		return nil
	}
	for _, name := range created {
		fmt.Fprintf(out, "created %s\n", name)
	}
	return nil
}
