package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"resultsbakery/internal"
	"resultsbakery/internal/cache"
	"resultsbakery/internal/clarity"
	"resultsbakery/internal/logging"
	"resultsbakery/internal/util"
)

// ClarityLoader turns a Clarity detail XML report into result records.
type ClarityLoader struct {
	source cache.Source
	logger *slog.Logger
}

func NewClarityLoader(src cache.Source, logger *slog.Logger) *ClarityLoader {
	return &ClarityLoader{source: src, logger: logging.OrNop(logger)}
}

func (l *ClarityLoader) Load(ctx context.Context, m internal.Mapping, ec ElectionContext) ([]internal.Result, error) {
	rc, err := l.source.Open(ctx, m)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	doc, err := clarity.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internal.ErrMalformedSource, m.GeneratedFilename, err)
	}

	level, ok := internal.ParseReportingLevel(doc.Level)
	if !ok {
		level = internal.LevelCounty
	}
	name := doc.Region
	if name == "" {
		name = m.Name
	}
	region := Region{Name: name, Level: level, OCDID: RegionOCDID(ec.StateOCDID, level, name, m)}
	contests := ec.contests()

	out := make([]internal.Result, 0, len(doc.Results))
	unresolved := map[string]bool{}
	for _, entry := range doc.Results {
		r := ec.newResult(m)
		r.ReportingLevel, r.Jurisdiction, r.OCDID = ResolveJurisdiction(entry.Jurisdiction, region)
		r.RawContest = entry.Contest.Text
		r.RawVoteType = entry.VoteType
		r.Office, r.District, r.PrimaryParty = contests.Resolve(entry.Contest.Text)
		if r.Office == nil && !unresolved[entry.Contest.Text] {
			unresolved[entry.Contest.Text] = true
			l.logger.Debug("unresolved contest", "file", m.GeneratedFilename, "contest", entry.Contest.Text)
		}

		if entry.Choice != nil {
			r.FullName = entry.Choice.Text
			r.Party = util.OptString(entry.Choice.Party)
			r.VoteType = CanonicalVoteType(entry.VoteType)
		} else {
			r.FullName = entry.VoteType
		}

		r.Votes = entry.Votes
		if entry.BadVotes || r.Votes < 0 {
			l.logger.Debug("unreadable vote count", "file", m.GeneratedFilename, "contest", entry.Contest.Text, "choice", r.FullName, "jurisdiction", r.Jurisdiction)
			r.Votes = 0
		}
		out = append(out, r)
	}
	return out, nil
}
