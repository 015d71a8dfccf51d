// Package bakery writes stored results out as per-election files plus a
// manifest describing every file a run produced.
package bakery

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"resultsbakery/internal"
)

const timestampLayout = "20060102T150405"

// Filter narrows the records a run bakes. Empty fields match everything.
type Filter struct {
	DatePrefix     string
	ElectionType   internal.RaceType
	ReportingLevel internal.ReportingLevel
	ElectionIDs    []string
}

// RunContext carries everything a bake needs. Every stage takes it as an
// argument; nothing about a run is kept elsewhere.
type RunContext struct {
	State     string
	Format    Format
	OutputDir string
	Timestamp time.Time
	Filter    Filter
	Raw       bool
}

func (run RunContext) stamp() string {
	return run.Timestamp.UTC().Format(timestampLayout)
}

func (run RunContext) state() string {
	return strings.ToLower(strings.TrimSpace(run.State))
}

func (run RunContext) validate() error {
	if run.state() == "" {
		return fmt.Errorf("%w: state is required", internal.ErrConfiguration)
	}
	if strings.TrimSpace(run.OutputDir) == "" {
		return fmt.Errorf("%w: output directory is required", internal.ErrConfiguration)
	}
	if run.Timestamp.IsZero() {
		return fmt.Errorf("%w: run timestamp is required", internal.ErrConfiguration)
	}
	if _, err := writerFor(run.Format); err != nil {
		return err
	}
	return nil
}

type DateFilterKind int

const (
	// DateDiscover means the filter is empty or names a year or month;
	// elections are looked up.
	DateDiscover DateFilterKind = iota
	// DateDay names a single day; the election type must be given.
	DateDay
)

var (
	reDiscoverFilter = regexp.MustCompile(`^\d{4}(\d{2})?$`)
	reDayFilter      = regexp.MustCompile(`^(\d{4})-?(\d{2})-?(\d{2})$`)
)

// ClassifyDateFilter returns the filter's kind and its YYYYMMDD-prefix form.
func ClassifyDateFilter(datefilter string) (DateFilterKind, string, error) {
	f := strings.TrimSpace(datefilter)
	if f == "" || reDiscoverFilter.MatchString(f) {
		return DateDiscover, f, nil
	}
	if m := reDayFilter.FindStringSubmatch(f); m != nil {
		return DateDay, m[1] + m[2] + m[3], nil
	}
	return DateDiscover, "", fmt.Errorf("%w: date filter %q must be YYYY, YYYYMM, YYYYMMDD or YYYY-MM-DD", internal.ErrConfiguration, datefilter)
}
