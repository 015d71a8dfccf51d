package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"resultsbakery/internal"
	"resultsbakery/internal/cache"
	"resultsbakery/internal/logging"
	"resultsbakery/internal/util"
)

const (
	colContest   = "contest name"
	colChoice    = "choice name"
	colParty     = "party name"
	colTotal     = "total votes"
	colOverVotes = "over votes"
	colUnderVote = "under votes"
)

// SummaryLoader reads Clarity summary exports: a summary.csv, either bare
// or inside summary.zip. Summaries carry region totals only, so every
// record is at the region's own level.
type SummaryLoader struct {
	source cache.Source
	logger *slog.Logger
}

func NewSummaryLoader(src cache.Source, logger *slog.Logger) *SummaryLoader {
	return &SummaryLoader{source: src, logger: logging.OrNop(logger)}
}

func (l *SummaryLoader) Load(ctx context.Context, m internal.Mapping, ec ElectionContext) ([]internal.Result, error) {
	rc, err := l.source.Open(ctx, m)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	blob, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", internal.ErrSourceUnavailable, m.GeneratedFilename, err)
	}
	csvData, err := summaryCSV(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internal.ErrMalformedSource, m.GeneratedFilename, err)
	}

	region := Region{Name: m.Name, Level: internal.LevelCounty}
	region.OCDID = RegionOCDID(ec.StateOCDID, region.Level, region.Name, m)
	results, err := l.parse(ctx, csvData, m, ec, region)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", internal.ErrMalformedSource, m.GeneratedFilename, err)
	}
	return results, nil
}

// summaryCSV returns the CSV payload, unpacking the first .csv entry when
// blob is a zip archive.
func summaryCSV(blob []byte) (io.Reader, error) {
	if !bytes.HasPrefix(blob, []byte("PK")) {
		return bytes.NewReader(blob), nil
	}
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if !strings.EqualFold(path.Ext(f.Name), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in zip: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s in zip: %w", f.Name, err)
		}
		return bytes.NewReader(data), nil
	}
	return nil, errors.New("zip has no csv entry")
}

func (l *SummaryLoader) parse(ctx context.Context, r io.Reader, m internal.Mapping, ec ElectionContext, region Region) ([]internal.Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv headers: %w", err)
	}
	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{colContest, colChoice, colTotal} {
		if _, ok := headerMap[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}
	field := func(row []string, name string) string {
		if idx, ok := headerMap[name]; ok && idx < len(row) {
			return util.NormalizeLabel(row[idx])
		}
		return ""
	}

	contests := ec.contests()
	seen := map[string]bool{}
	var out []internal.Result
	emit := func(contest, fullName, party, votes, rawVoteType string) {
		res := ec.newResult(m)
		res.ReportingLevel, res.Jurisdiction, res.OCDID = ResolveJurisdiction(nil, region)
		res.RawContest = contest
		res.RawVoteType = rawVoteType
		res.Office, res.District, res.PrimaryParty = contests.Resolve(contest)
		res.FullName = fullName
		res.Party = util.OptString(party)
		n, ok := util.ParseVotes(votes)
		if !ok || n < 0 {
			l.logger.Debug("unreadable vote count", "file", m.GeneratedFilename, "contest", contest, "choice", fullName, "value", votes)
			n = 0
		}
		res.Votes = n
		out = append(out, res)
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		contest := field(row, colContest)
		if contest == "" {
			continue
		}
		emit(contest, field(row, colChoice), field(row, colParty), field(row, colTotal), "Total")

		if seen[contest] {
			continue
		}
		seen[contest] = true
		if _, ok := headerMap[colOverVotes]; ok {
			emit(contest, "Over Votes", "", field(row, colOverVotes), "Over Votes")
		}
		if _, ok := headerMap[colUnderVote]; ok {
			emit(contest, "Under Votes", "", field(row, colUnderVote), "Under Votes")
		}
	}
	return out, nil
}
