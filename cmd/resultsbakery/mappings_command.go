package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"resultsbakery/internal/pipeline"
)

func newMappingsCommand(ctx *commandContext) *cobra.Command {
	var state, datefilter string

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List the raw files catalogued for a state and the loader each would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireState(state); err != nil {
				return err
			}
			cat, err := ctx.catalog(state)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, m := range cat.Mappings(datefilter) {
				rows = append(rows, []string{m.GeneratedFilename, m.Election, pipeline.DetectFormat(m).String(), m.RawURL})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no mappings")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Election", "Format", "Raw URL"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Two-letter state abbreviation, e.g. ar")
	cmd.Flags().StringVar(&datefilter, "datefilter", "", "Portion of a YYYYMMDD date, e.g. YYYY or YYYYMM")
	return cmd
}
