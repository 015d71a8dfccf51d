package bakery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"resultsbakery/internal"
	"resultsbakery/internal/logging"
	"resultsbakery/internal/storage"
	"resultsbakery/internal/util"
)

// Store is the read side of the record sink.
type Store interface {
	QueryResults(q storage.ResultQuery) ([]internal.Result, error)
}

// Discovery lists a state's elections grouped by year.
type Discovery interface {
	Elections(state, datefilter string) (map[int][]internal.Election, error)
}

// Unit is the records for one (election, reporting level) pair, in store order.
type Unit struct {
	ElectionID string
	StartDate  string
	RaceType   internal.RaceType
	Level      internal.ReportingLevel
	Records    []internal.Result
}

func (u Unit) filename(run RunContext) string {
	parts := []string{
		strings.ReplaceAll(u.StartDate, "-", ""),
		run.state(),
		string(u.RaceType),
	}
	if tag := electionTag(u.ElectionID, run.state(), u.StartDate, u.RaceType); tag != "" {
		parts = append(parts, tag)
	}
	parts = append(parts, string(u.Level))
	if run.Raw {
		parts = append(parts, "raw")
	}
	parts = append(parts, run.stamp())
	return strings.Join(parts, "__") + "." + string(run.Format)
}

type Baker struct {
	store  Store
	logger *slog.Logger
}

func NewBaker(store Store, logger *slog.Logger) *Baker {
	return &Baker{store: store, logger: logging.OrNop(logger)}
}

// electionTag tells apart elections that share a date and race type. Ids of
// the usual <state>-<date>-<race> form need no tag.
func electionTag(id, state, startDate string, race internal.RaceType) string {
	id = strings.ToLower(strings.TrimSpace(id))
	prefix := state + "-" + startDate + "-"
	if id == "" || id == prefix+string(race) {
		return ""
	}
	return util.Slug(strings.TrimPrefix(id, prefix))
}

// Collect reads the records selected by run.Filter and groups them into
// output units.
func (b *Baker) Collect(ctx context.Context, run RunContext) ([]Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := b.store.QueryResults(storage.ResultQuery{
		State:          run.state(),
		DatePrefix:     run.Filter.DatePrefix,
		RaceType:       run.Filter.ElectionType,
		ReportingLevel: run.Filter.ReportingLevel,
		ElectionIDs:    run.Filter.ElectionIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("collect results: %w", err)
	}

	var units []Unit
	index := map[string]int{}
	for _, r := range records {
		key := r.ElectionID + "|" + string(r.ReportingLevel)
		i, ok := index[key]
		if !ok {
			i = len(units)
			index[key] = i
			units = append(units, Unit{ElectionID: r.ElectionID, StartDate: r.StartDate, RaceType: r.RaceType, Level: r.ReportingLevel})
		}
		units[i].Records = append(units[i].Records, r)
	}
	b.logger.Debug("collected results", "state", run.state(), "records", len(records), "units", len(units))
	return units, nil
}

// Write serializes each unit into its own file under run.OutputDir.
func (b *Baker) Write(ctx context.Context, run RunContext, units []Unit) ([]ManifestEntry, error) {
	write, err := writerFor(run.Format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		return nil, err
	}
	cols := columnsFor(run.Raw)
	generatedAt := run.Timestamp.UTC().Format(time.RFC3339)

	entries := make([]ManifestEntry, 0, len(units))
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		name := u.filename(run)
		if err := write(filepath.Join(run.OutputDir, name), cols, u.Records, run.Timestamp); err != nil {
			return entries, fmt.Errorf("write %s: %w", name, err)
		}
		entries = append(entries, ManifestEntry{
			Path:        name,
			Elections:   []string{u.ElectionID},
			Format:      string(run.Format),
			Level:       string(u.Level),
			Records:     len(u.Records),
			GeneratedAt: generatedAt,
		})
		b.logger.Info("baked file", "path", name, "records", len(u.Records))
	}
	return entries, nil
}

// WriteManifest writes the manifest for entries and returns its path.
func (b *Baker) WriteManifest(run RunContext, name string, entries []ManifestEntry) (string, error) {
	path := filepath.Join(run.OutputDir, name)
	if err := writeManifest(path, newManifest(run, entries)); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Report describes one collect/write/manifest cycle.
type Report struct {
	Manifest string
	Files    []ManifestEntry
}

func (b *Baker) bake(ctx context.Context, run RunContext, manifestName string) (Report, error) {
	units, err := b.Collect(ctx, run)
	if err != nil {
		return Report{}, err
	}
	entries, err := b.Write(ctx, run, units)
	if err != nil {
		return Report{Files: entries}, err
	}
	path, err := b.WriteManifest(run, manifestName, entries)
	if err != nil {
		return Report{Files: entries}, err
	}
	return Report{Manifest: path, Files: entries}, nil
}

// BakeStateFile bakes everything matching run.Filter in one pass.
func (b *Baker) BakeStateFile(ctx context.Context, run RunContext) (Report, error) {
	run.Format = NormalizeFormat(run.Format)
	if err := run.validate(); err != nil {
		return Report{}, err
	}
	kind, prefix, err := ClassifyDateFilter(run.Filter.DatePrefix)
	if err != nil {
		return Report{}, err
	}
	if kind == DateDay && run.Filter.ElectionType == "" {
		return Report{}, errMissingElectionType
	}
	run.Filter.DatePrefix = prefix

	unlock, err := lockOutputDir(run.OutputDir)
	if err != nil {
		return Report{}, err
	}
	defer unlock()

	return b.bake(ctx, run, run.state()+"__manifest__"+run.stamp()+".json")
}

// ElectionReport is the outcome for one election in per-election mode.
type ElectionReport struct {
	StartDate string
	RaceType  internal.RaceType
	Report    Report
	Err       error
}

var errMissingElectionType = fmt.Errorf("%w: you must specify the election type when baking results for a single date", internal.ErrConfiguration)

// BakeElectionFiles runs one collect/write/manifest cycle per election and
// prints a progress line for each to progress. A failing election is
// reported and the next one still runs.
func (b *Baker) BakeElectionFiles(ctx context.Context, run RunContext, disc Discovery, progress io.Writer) ([]ElectionReport, error) {
	run.Format = NormalizeFormat(run.Format)
	if err := run.validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}
	kind, prefix, err := ClassifyDateFilter(run.Filter.DatePrefix)
	if err != nil {
		return nil, err
	}

	var targets []internal.Election
	switch kind {
	case DateDay:
		if run.Filter.ElectionType == "" {
			return nil, errMissingElectionType
		}
		targets = []internal.Election{{State: run.state(), StartDate: prefix, RaceType: run.Filter.ElectionType}}
	default:
		if disc == nil {
			return nil, fmt.Errorf("%w: election discovery is not configured", internal.ErrConfiguration)
		}
		byYear, err := disc.Elections(run.state(), prefix)
		if err != nil {
			return nil, err
		}
		targets = flattenElections(byYear, run.Filter.ElectionType)
	}

	unlock, err := lockOutputDir(run.OutputDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	reports := make([]ElectionReport, 0, len(targets))
	for _, e := range targets {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		date := e.DateKey()
		fmt.Fprintf(progress, "Baking results for %s election on %s\n", e.RaceType, date)

		sub := run
		sub.Filter.DatePrefix = date
		sub.Filter.ElectionType = e.RaceType
		parts := []string{date, run.state(), string(e.RaceType)}
		if e.ID != "" {
			sub.Filter.ElectionIDs = []string{e.ID}
			if tag := electionTag(e.ID, run.state(), e.StartDate, e.RaceType); tag != "" {
				parts = append(parts, tag)
			}
		}
		parts = append(parts, "manifest", run.stamp())
		name := strings.Join(parts, "__") + ".json"

		report, err := b.bake(ctx, sub, name)
		if err != nil {
			b.logger.Error("bake election failed", "date", date, "race_type", string(e.RaceType), "error", err)
		}
		reports = append(reports, ElectionReport{StartDate: date, RaceType: e.RaceType, Report: report, Err: err})
	}
	return reports, nil
}

func flattenElections(byYear map[int][]internal.Election, raceType internal.RaceType) []internal.Election {
	years := make([]int, 0, len(byYear))
	for yr := range byYear {
		years = append(years, yr)
	}
	sort.Ints(years)

	var out []internal.Election
	for _, yr := range years {
		for _, e := range byYear[yr] {
			if raceType != "" && e.RaceType != raceType {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// lockOutputDir takes an advisory lock so two bakes cannot interleave
// writes into one directory. The lock file is removed on release.
func lockOutputDir(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ".bake.lock")
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire bake lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: another bake is writing to %s", internal.ErrConfiguration, dir)
	}
	return func() {
		_ = lock.Unlock()
		_ = os.Remove(path)
	}, nil
}
