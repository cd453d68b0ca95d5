package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veritas-labs/lorebase/internal/cli"
	"github.com/veritas-labs/lorebase/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lorebased",
		Short: "Lorebase daemon",
		Long:  "Lorebase daemon for running the knowledge base API server and maintenance jobs",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.CleanupCmd())
	rootCmd.AddCommand(admin.ReindexCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
