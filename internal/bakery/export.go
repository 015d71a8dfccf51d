package bakery

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"resultsbakery/internal"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// NormalizeFormat coerces format values into known aliases with defaults applied.
func NormalizeFormat(format Format) Format {
	normalized := strings.ToLower(strings.TrimSpace(string(format)))
	switch normalized {
	case "", string(FormatCSV):
		return FormatCSV
	case "excel", "xls":
		return FormatXLSX
	default:
		return Format(normalized)
	}
}

type column struct {
	name  string
	value func(r internal.Result) any
}

func opt(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

var normalizedColumns = []column{
	{"election_id", func(r internal.Result) any { return r.ElectionID }},
	{"state", func(r internal.Result) any { return r.State }},
	{"start_date", func(r internal.Result) any { return r.StartDate }},
	{"race_type", func(r internal.Result) any { return string(r.RaceType) }},
	{"office", func(r internal.Result) any { return opt(r.Office) }},
	{"district", func(r internal.Result) any { return opt(r.District) }},
	{"party", func(r internal.Result) any { return opt(r.Party) }},
	{"primary_party", func(r internal.Result) any { return opt(r.PrimaryParty) }},
	{"full_name", func(r internal.Result) any { return r.FullName }},
	{"reporting_level", func(r internal.Result) any { return string(r.ReportingLevel) }},
	{"jurisdiction", func(r internal.Result) any { return r.Jurisdiction }},
	{"ocd_id", func(r internal.Result) any { return r.OCDID }},
	{"votes", func(r internal.Result) any { return r.Votes }},
	{"vote_type", func(r internal.Result) any {
		if r.VoteType == nil {
			return nil
		}
		return string(*r.VoteType)
	}},
}

// Raw exports keep the labels exactly as the source reported them.
var rawColumns = []column{
	{"election_id", func(r internal.Result) any { return r.ElectionID }},
	{"state", func(r internal.Result) any { return r.State }},
	{"start_date", func(r internal.Result) any { return r.StartDate }},
	{"race_type", func(r internal.Result) any { return string(r.RaceType) }},
	{"source", func(r internal.Result) any { return r.Source }},
	{"contest", func(r internal.Result) any { return r.RawContest }},
	{"full_name", func(r internal.Result) any { return r.FullName }},
	{"party", func(r internal.Result) any { return opt(r.Party) }},
	{"reporting_level", func(r internal.Result) any { return string(r.ReportingLevel) }},
	{"jurisdiction", func(r internal.Result) any { return r.Jurisdiction }},
	{"ocd_id", func(r internal.Result) any { return r.OCDID }},
	{"votes", func(r internal.Result) any { return r.Votes }},
	{"vote_type", func(r internal.Result) any { return r.RawVoteType }},
}

func columnsFor(raw bool) []column {
	if raw {
		return rawColumns
	}
	return normalizedColumns
}

type writeFunc func(path string, cols []column, records []internal.Result, ts time.Time) error

func writerFor(format Format) (writeFunc, error) {
	switch format {
	case FormatCSV:
		return writeCSV, nil
	case FormatJSON:
		return writeJSON, nil
	case FormatXLSX:
		return writeXLSX, nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", internal.ErrConfiguration, internal.ErrUnsupportedFormat, format)
	}
}

func writeCSV(path string, cols []column, records []internal.Result, _ time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
	}
	_ = w.Write(header)

	row := make([]string, len(cols))
	for _, r := range records {
		for i, c := range cols {
			row[i] = cellString(c.value(r))
		}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

// jsonRow marshals one record as an object with keys in column order.
type jsonRow struct {
	cols []column
	r    internal.Result
}

func (j jsonRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range j.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.value(j.r))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(path string, cols []column, records []internal.Result, _ time.Time) error {
	rows := make([]jsonRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, jsonRow{cols: cols, r: r})
	}
	blob, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(blob, '\n'), 0o644)
}

func writeXLSX(path string, cols []column, records []internal.Result, ts time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	stamp := ts.UTC().Format(time.RFC3339)
	if err := f.SetDocProps(&excelize.DocProperties{Creator: "resultsbakery", Created: stamp, Modified: stamp}); err != nil {
		return err
	}

	for i, c := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, c.name); err != nil {
			return err
		}
	}
	for i, r := range records {
		for j, c := range cols {
			v := c.value(r)
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(path)
}
