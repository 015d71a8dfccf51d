package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"resultsbakery/internal"
	"resultsbakery/internal/bakery"
	"resultsbakery/internal/storage"
)

type bakeOptions struct {
	state        string
	format       string
	outputDir    string
	datefilter   string
	electionType string
	level        string
	raw          bool
	timestamp    string
}

func (o *bakeOptions) bind(cmd *cobra.Command, withLevel bool) {
	cmd.Flags().StringVar(&o.state, "state", "", "Two-letter state abbreviation, e.g. ar")
	cmd.Flags().StringVar(&o.format, "fmt", "csv", "Format of output files: csv, json or xlsx")
	cmd.Flags().StringVar(&o.outputDir, "outputdir", "", "Directory where output files are written (default OUTPUT_DIR)")
	cmd.Flags().StringVar(&o.datefilter, "datefilter", "", "Portion of a YYYYMMDD date, e.g. YYYY, YYYYMM or YYYYMMDD")
	cmd.Flags().StringVar(&o.electionType, "electiontype", "", "Only bake elections of this type: general, primary, special or runoff")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "Bake raw source labels instead of normalized fields")
	cmd.Flags().StringVar(&o.timestamp, "timestamp", "", "Generation time in RFC 3339 (default now); fixes output names")
	if withLevel {
		cmd.Flags().StringVar(&o.level, "level", "", "Only bake results at this reporting level, e.g. county or precinct")
	}
}

func (o *bakeOptions) runContext(defaultOutput string, now time.Time) (bakery.RunContext, error) {
	if err := requireState(o.state); err != nil {
		return bakery.RunContext{}, err
	}
	run := bakery.RunContext{
		State:     o.state,
		Format:    bakery.NormalizeFormat(bakery.Format(o.format)),
		OutputDir: o.outputDir,
		Timestamp: now,
		Filter:    bakery.Filter{DatePrefix: o.datefilter},
		Raw:       o.raw,
	}
	if run.OutputDir == "" {
		run.OutputDir = defaultOutput
	}
	if ts := strings.TrimSpace(o.timestamp); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return run, fmt.Errorf("%w: --timestamp: %v", internal.ErrConfiguration, err)
		}
		run.Timestamp = parsed
	}
	if et := strings.ToLower(strings.TrimSpace(o.electionType)); et != "" {
		switch internal.RaceType(et) {
		case internal.RaceGeneral, internal.RacePrimary, internal.RaceSpecial, internal.RaceRunoff:
			run.Filter.ElectionType = internal.RaceType(et)
		default:
			return run, fmt.Errorf("%w: unknown election type %q", internal.ErrConfiguration, o.electionType)
		}
	}
	if o.level != "" {
		level, ok := internal.ParseReportingLevel(o.level)
		if !ok {
			return run, fmt.Errorf("%w: unknown reporting level %q", internal.ErrConfiguration, o.level)
		}
		run.Filter.ReportingLevel = level
	}
	return run, nil
}

func newBakeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Write loaded results to structured files with a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newBakeStateFileCommand(ctx))
	cmd.AddCommand(newBakeElectionFileCommand(ctx))
	return cmd
}

func newBakeStateFileCommand(ctx *commandContext) *cobra.Command {
	var opts bakeOptions

	cmd := &cobra.Command{
		Use:   "state-file",
		Short: "Bake every matching election in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run, err := opts.runContext(cfg.OutputDir, time.Now())
			if err != nil {
				return err
			}
			return ctx.withDB(func(db *storage.DB) error {
				report, err := bakery.NewBaker(db, logger).BakeStateFile(cmd.Context(), run)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "baked %d file(s), manifest %s\n", len(report.Files), report.Manifest)
				return nil
			})
		},
	}

	opts.bind(cmd, true)
	return cmd
}

func newBakeElectionFileCommand(ctx *commandContext) *cobra.Command {
	var opts bakeOptions

	cmd := &cobra.Command{
		Use:   "election-file",
		Short: "Bake one set of files and a manifest per election",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run, err := opts.runContext(cfg.OutputDir, time.Now())
			if err != nil {
				return err
			}
			reg, err := ctx.registry()
			if err != nil {
				return err
			}
			return ctx.withDB(func(db *storage.DB) error {
				reports, err := bakery.NewBaker(db, logger).BakeElectionFiles(cmd.Context(), run, reg, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				failed := 0
				for _, r := range reports {
					if r.Err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "failed to bake %s election on %s: %v\n", r.RaceType, r.StartDate, r.Err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d election(s) failed to bake", failed, len(reports))
				}
				return nil
			})
		},
	}

	opts.bind(cmd, false)
	return cmd
}
