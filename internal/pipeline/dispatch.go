package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"resultsbakery/internal"
	"resultsbakery/internal/cache"
	"resultsbakery/internal/logging"
)

// Format is the closed set of vendor report formats the loader can read.
type Format int

const (
	FormatUnsupported Format = iota
	FormatClarityDetail
	FormatClaritySummary
)

func (f Format) String() string {
	switch f {
	case FormatClarityDetail:
		return "clarity_detail"
	case FormatClaritySummary:
		return "clarity_summary"
	default:
		return "unsupported"
	}
}

const clarityHost = "results.enr.clarityelections.com"

// DetectFormat fingerprints a mapping by its raw_url.
func DetectFormat(m internal.Mapping) Format {
	raw := strings.TrimSpace(m.RawURL)
	if raw == "" || !strings.Contains(strings.ToLower(raw), clarityHost) {
		return FormatUnsupported
	}
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	if strings.Contains(strings.ToLower(path), "summary") {
		return FormatClaritySummary
	}
	return FormatClarityDetail
}

// ElectionContext is merged into every record a loader emits.
type ElectionContext struct {
	Election   internal.Election
	StateOCDID string
	Contests   *ContestResolver
}

func (ec ElectionContext) newResult(m internal.Mapping) internal.Result {
	return internal.Result{
		ElectionID: ec.Election.ID,
		State:      strings.ToUpper(ec.Election.State),
		StartDate:  ec.Election.StartDate,
		RaceType:   ec.Election.RaceType,
		Source:     m.GeneratedFilename,
	}
}

func (ec ElectionContext) contests() *ContestResolver {
	if ec.Contests == nil {
		return NewContestResolver(nil)
	}
	return ec.Contests
}

type Loader interface {
	Load(ctx context.Context, m internal.Mapping, ec ElectionContext) ([]internal.Result, error)
}

// SkipLoader stands in for formats nothing can read yet.
type SkipLoader struct {
	logger *slog.Logger
}

func (l SkipLoader) Load(_ context.Context, m internal.Mapping, _ ElectionContext) ([]internal.Result, error) {
	logging.OrNop(l.logger).Warn("skipping file", "file", m.GeneratedFilename, "raw_url", m.RawURL)
	return nil, nil
}

type Dispatcher struct {
	loaders map[Format]Loader
	skip    Loader
}

func NewDispatcher(src cache.Source, logger *slog.Logger) *Dispatcher {
	logger = logging.OrNop(logger)
	return &Dispatcher{
		loaders: map[Format]Loader{
			FormatClarityDetail:  NewClarityLoader(src, logger),
			FormatClaritySummary: NewSummaryLoader(src, logger),
		},
		skip: SkipLoader{logger: logger},
	}
}

// LoaderFor always returns a loader; unmatched mappings get the skip loader.
func (d *Dispatcher) LoaderFor(m internal.Mapping) Loader {
	if l, ok := d.loaders[DetectFormat(m)]; ok {
		return l
	}
	return d.skip
}
