package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"resultsbakery/internal/storage"
	"resultsbakery/internal/util"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent load runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *storage.DB) error {
				runs, err := db.ListLoadRuns(limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{r.CreatedAt, r.Source, r.Format, r.Status, strconv.Itoa(r.Records), util.Deref(r.Error)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"When", "File", "Format", "Status", "Records", "Error"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}
