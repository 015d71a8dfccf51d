package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "resultsbakery",
		Short:         "Load raw election results and bake them into normalized files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.dbFlag, "db", "", "SQLite database path (default DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&ctx.datasourceFlag, "datasources", "", "Directory of state catalogs (default DATASOURCE_DIR)")
	rootCmd.PersistentFlags().StringVar(&ctx.cacheFlag, "cache", "", "Raw file cache directory (default CACHE_DIR)")

	rootCmd.AddCommand(newMappingsCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newLoadCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newBakeCommand(ctx))

	return rootCmd
}
