package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"resultsbakery/internal"
	"resultsbakery/internal/cache"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var state, datefilter string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download catalogued raw files into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireState(state); err != nil {
				return err
			}
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, err := ctx.catalog(state)
			if err != nil {
				return err
			}

			fetcher := cache.NewFetcher(cfg, logger)
			var rows [][]string
			failed := 0
			for _, m := range cat.Mappings(datefilter) {
				if strings.TrimSpace(m.RawURL) == "" {
					rows = append(rows, []string{m.GeneratedFilename, "no raw_url", ""})
					continue
				}
				res, err := fetcher.Fetch(cmd.Context(), m)
				switch {
				case err != nil && errors.Is(err, internal.ErrSourceUnavailable):
					failed++
					logger.Warn("fetch failed", "file", m.GeneratedFilename, "error", err)
					rows = append(rows, []string{m.GeneratedFilename, "unavailable", ""})
				case err != nil:
					return err
				case res.Downloaded:
					rows = append(rows, []string{m.GeneratedFilename, "downloaded", strconv.FormatInt(res.Bytes, 10)})
				default:
					rows = append(rows, []string{m.GeneratedFilename, "cached", strconv.FormatInt(res.Bytes, 10)})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Status", "Bytes"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			if failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) unavailable\n", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Two-letter state abbreviation, e.g. ar")
	cmd.Flags().StringVar(&datefilter, "datefilter", "", "Portion of a YYYYMMDD date, e.g. YYYY or YYYYMM")
	return cmd
}
