package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"resultsbakery/internal"
	"resultsbakery/internal/cache"
	"resultsbakery/internal/datasource"
	"resultsbakery/internal/logging"
	"resultsbakery/internal/storage"
)

const (
	StatusLoaded  = "loaded"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// LoadError ties a per-mapping failure to the stage and file it came from.
type LoadError struct {
	Stage string
	File  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s at %s stage: %v", e.File, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type LoadService struct {
	db       *storage.DB
	dispatch *Dispatcher
	logger   *slog.Logger
}

func NewLoadService(db *storage.DB, src cache.Source, logger *slog.Logger) *LoadService {
	logger = logging.OrNop(logger)
	return &LoadService{db: db, dispatch: NewDispatcher(src, logger), logger: logger}
}

type LoadResult struct {
	File    string
	Format  Format
	Status  string
	Records int
	Err     error
}

// LoadMapping loads one mapping and replaces whatever an earlier load of
// the same file stored.
func (s *LoadService) LoadMapping(ctx context.Context, cat *datasource.Catalog, m internal.Mapping) (LoadResult, error) {
	return s.load(ctx, cat, NewContestResolver(cat.Offices()), m)
}

// LoadState loads every mapping matching datefilter in catalog order. A
// failing mapping is logged and reported in its LoadResult; the rest still
// load. Only cancellation stops the loop.
func (s *LoadService) LoadState(ctx context.Context, cat *datasource.Catalog, datefilter string) ([]LoadResult, error) {
	contests := NewContestResolver(cat.Offices())
	mappings := cat.Mappings(datefilter)
	out := make([]LoadResult, 0, len(mappings))
	for _, m := range mappings {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.load(ctx, cat, contests, m)
		if err != nil {
			s.logger.Error("load failed", "file", m.GeneratedFilename, "error", err)
			res.Err = err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *LoadService) load(ctx context.Context, cat *datasource.Catalog, contests *ContestResolver, m internal.Mapping) (LoadResult, error) {
	start := time.Now()
	format := DetectFormat(m)
	res := LoadResult{File: m.GeneratedFilename, Format: format}

	fail := func(stage string, err error) (LoadResult, error) {
		res.Status = StatusFailed
		lerr := &LoadError{Stage: stage, File: m.GeneratedFilename, Err: err}
		s.recordRun(m, res, lerr, start)
		return res, lerr
	}

	election, ok := cat.Election(m.Election)
	if !ok {
		return fail("election", fmt.Errorf("%w: unknown election %q", internal.ErrConfiguration, m.Election))
	}
	ec := ElectionContext{Election: election, StateOCDID: cat.StateOCDID(), Contests: contests}

	records, err := s.dispatch.LoaderFor(m).Load(ctx, m, ec)
	if err != nil {
		return fail("parse", err)
	}
	if format == FormatUnsupported {
		res.Status = StatusSkipped
		s.recordRun(m, res, nil, start)
		return res, nil
	}

	if err := s.db.ReplaceResults(m.GeneratedFilename, records); err != nil {
		return fail("store", err)
	}
	res.Status = StatusLoaded
	res.Records = len(records)
	s.recordRun(m, res, nil, start)
	s.logger.Info("loaded file", "file", m.GeneratedFilename, "format", format.String(), "records", len(records))
	return res, nil
}

func (s *LoadService) recordRun(m internal.Mapping, res LoadResult, loadErr error, start time.Time) {
	run := storage.LoadRun{
		TraceID:    traceID(),
		Source:     m.GeneratedFilename,
		ElectionID: m.Election,
		Format:     res.Format.String(),
		Status:     res.Status,
		Records:    res.Records,
	}
	if loadErr != nil {
		msg := loadErr.Error()
		run.Error = &msg
	}
	if err := s.db.InsertLoadRun(run, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}); err != nil {
		s.logger.Warn("record load run", "file", m.GeneratedFilename, "error", err)
	}
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
