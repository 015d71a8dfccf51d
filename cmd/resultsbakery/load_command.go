package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"resultsbakery/internal"
	"resultsbakery/internal/pipeline"
	"resultsbakery/internal/storage"
)

func newLoadCommand(ctx *commandContext) *cobra.Command {
	var state, datefilter, file string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Parse cached raw files into normalized result records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireState(state); err != nil {
				return err
			}
			_, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, err := ctx.catalog(state)
			if err != nil {
				return err
			}
			src, err := ctx.source(state)
			if err != nil {
				return err
			}

			return ctx.withDB(func(db *storage.DB) error {
				svc := pipeline.NewLoadService(db, src, logger)

				var results []pipeline.LoadResult
				if file != "" {
					m, ok := cat.MappingForFile(file)
					if !ok {
						return fmt.Errorf("%w: no mapping for file %s", internal.ErrConfiguration, file)
					}
					res, err := svc.LoadMapping(cmd.Context(), cat, m)
					res.Err = err
					results = append(results, res)
				} else {
					results, err = svc.LoadState(cmd.Context(), cat, datefilter)
					if err != nil {
						return err
					}
				}

				rows := make([][]string, 0, len(results))
				for _, r := range results {
					msg := ""
					if r.Err != nil {
						msg = r.Err.Error()
					}
					rows = append(rows, []string{r.File, r.Format.String(), r.Status, strconv.Itoa(r.Records), msg})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Format", "Status", "Records", "Error"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Two-letter state abbreviation, e.g. ar")
	cmd.Flags().StringVar(&datefilter, "datefilter", "", "Portion of a YYYYMMDD date, e.g. YYYY or YYYYMM")
	cmd.Flags().StringVar(&file, "file", "", "Load only this generated filename")
	return cmd
}
