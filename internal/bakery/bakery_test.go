package bakery

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"resultsbakery/internal"
	"resultsbakery/internal/storage"
)

var runTime = time.Date(2014, 6, 2, 15, 4, 5, 0, time.UTC)

func sp(v string) *string { return &v }

func record(election, date string, race internal.RaceType, level internal.ReportingLevel, name string, votes int) internal.Result {
	vt := internal.VoteElectionDay
	return internal.Result{
		ElectionID:     election,
		State:          "AR",
		StartDate:      date,
		RaceType:       race,
		Source:         election + ".xml",
		Office:         sp("State Representative"),
		District:       sp("66"),
		Party:          sp("REP"),
		FullName:       name,
		ReportingLevel: level,
		Jurisdiction:   "Van Buren",
		OCDID:          "ocd-division/country:us/state:ar/county:van_buren",
		Votes:          votes,
		VoteType:       &vt,
		RawContest:     "State Representative District 66 - REP",
		RawVoteType:    "Election Day",
	}
}

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	primary := []internal.Result{
		record("ar-2012-05-22-primary", "2012-05-22", internal.RacePrimary, internal.LevelCounty, "Jim Smith", 216),
		record("ar-2012-05-22-primary", "2012-05-22", internal.RacePrimary, internal.LevelPrecinct, "Jim Smith", 20),
		record("ar-2012-05-22-primary", "2012-05-22", internal.RacePrimary, internal.LevelPrecinct, "Jim Smith", 21),
	}
	general := record("ar-2012-11-06-general", "2012-11-06", internal.RaceGeneral, internal.LevelCounty, "Mitt Romney", 500)
	general.Office, general.District, general.VoteType = nil, nil, nil
	later := record("ar-2014-05-20-primary", "2014-05-20", internal.RacePrimary, internal.LevelCounty, "Jane Doe", 9)

	for source, rs := range map[string][]internal.Result{
		"primary.xml": primary,
		"general.xml": {general},
		"later.xml":   {later},
	} {
		if err := db.ReplaceResults(source, rs); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestClassifyDateFilter(t *testing.T) {
	cases := []struct {
		in     string
		kind   DateFilterKind
		prefix string
		bad    bool
	}{
		{"", DateDiscover, "", false},
		{"2012", DateDiscover, "2012", false},
		{"201205", DateDiscover, "201205", false},
		{"20120522", DateDay, "20120522", false},
		{"2012-05-22", DateDay, "20120522", false},
		{"12", DateDiscover, "", true},
		{"may 2012", DateDiscover, "", true},
	}
	for _, tc := range cases {
		kind, prefix, err := ClassifyDateFilter(tc.in)
		if tc.bad {
			if !errors.Is(err, internal.ErrConfiguration) {
				t.Fatalf("in=%q err=%v", tc.in, err)
			}
			continue
		}
		if err != nil || kind != tc.kind || prefix != tc.prefix {
			t.Fatalf("in=%q kind=%d prefix=%q err=%v", tc.in, kind, prefix, err)
		}
	}
}

func TestBakeStateFileYearSelectsEveryElection(t *testing.T) {
	b := NewBaker(seededDB(t), nil)
	dir := t.TempDir()

	report, err := b.BakeStateFile(context.Background(), RunContext{State: "AR", OutputDir: dir, Timestamp: runTime, Filter: Filter{DatePrefix: "2012"}})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range report.Files {
		names = append(names, f.Path)
	}
	want := []string{
		"20120522__ar__primary__county__20140602T150405.csv",
		"20120522__ar__primary__precinct__20140602T150405.csv",
		"20121106__ar__general__county__20140602T150405.csv",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("files=%v", names)
	}
	if report.Manifest != filepath.Join(dir, "ar__manifest__20140602T150405.json") {
		t.Fatalf("manifest=%s", report.Manifest)
	}

	m, err := ReadManifest(report.Manifest)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 3 || m.Files[1].Records != 2 || m.Files[1].Elections[0] != "ar-2012-05-22-primary" || m.GeneratedAt != "2014-06-02T15:04:05Z" {
		t.Fatalf("manifest=%+v", m)
	}
	if _, err := os.Stat(filepath.Join(dir, ".bake.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, want[2]))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0][4] != "office" || rows[1][4] != "" || rows[1][12] != "500" || rows[1][13] != "" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestBakeStateFileFilters(t *testing.T) {
	b := NewBaker(seededDB(t), nil)

	report, err := b.BakeStateFile(context.Background(), RunContext{State: "ar", OutputDir: t.TempDir(), Timestamp: runTime, Filter: Filter{ReportingLevel: internal.LevelCounty, ElectionType: internal.RacePrimary}})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Files) != 2 {
		t.Fatalf("len=%d", len(report.Files))
	}

	_, err = b.BakeStateFile(context.Background(), RunContext{State: "ar", OutputDir: t.TempDir(), Timestamp: runTime, Filter: Filter{DatePrefix: "20120522"}})
	if !errors.Is(err, internal.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
	_, err = b.BakeStateFile(context.Background(), RunContext{State: "ar", OutputDir: t.TempDir(), Timestamp: runTime, Format: "pdf"})
	if !errors.Is(err, internal.ErrConfiguration) || !errors.Is(err, internal.ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
}

type fakeDiscovery map[int][]internal.Election

func (d fakeDiscovery) Elections(state, datefilter string) (map[int][]internal.Election, error) {
	out := map[int][]internal.Election{}
	for yr, list := range d {
		for _, e := range list {
			if strings.HasPrefix(e.DateKey(), datefilter) {
				out[yr] = append(out[yr], e)
			}
		}
	}
	return out, nil
}

var arElections = fakeDiscovery{
	2012: {
		{ID: "ar-2012-05-22-primary", StartDate: "2012-05-22", RaceType: internal.RacePrimary},
		{ID: "ar-2012-06-12-runoff", StartDate: "2012-06-12", RaceType: internal.RaceRunoff},
		{ID: "ar-2012-11-06-general", StartDate: "2012-11-06", RaceType: internal.RaceGeneral},
	},
	2014: {
		{ID: "ar-2014-05-20-primary", StartDate: "2014-05-20", RaceType: internal.RacePrimary},
	},
}

type failingStore struct {
	Store
	race internal.RaceType
}

func (s failingStore) QueryResults(q storage.ResultQuery) ([]internal.Result, error) {
	if q.RaceType == s.race {
		return nil, errors.New("store offline")
	}
	return s.Store.QueryResults(q)
}

func TestBakeElectionFilesYear(t *testing.T) {
	b := NewBaker(failingStore{Store: seededDB(t), race: internal.RaceRunoff}, nil)
	dir := t.TempDir()
	var progress bytes.Buffer

	reports, err := b.BakeElectionFiles(context.Background(), RunContext{State: "ar", Format: "json", OutputDir: dir, Timestamp: runTime, Filter: Filter{DatePrefix: "2012"}}, arElections, &progress)
	if err != nil {
		t.Fatal(err)
	}
	wantProgress := "Baking results for primary election on 20120522\n" +
		"Baking results for runoff election on 20120612\n" +
		"Baking results for general election on 20121106\n"
	if progress.String() != wantProgress {
		t.Fatalf("progress=%q", progress.String())
	}
	if len(reports) != 3 {
		t.Fatalf("len=%d", len(reports))
	}
	if reports[0].Err != nil || len(reports[0].Report.Files) != 2 {
		t.Fatalf("primary=%+v", reports[0])
	}
	if reports[1].Err == nil {
		t.Fatal("runoff should fail")
	}
	if reports[2].Err != nil || reports[2].Report.Manifest != filepath.Join(dir, "20121106__ar__general__manifest__20140602T150405.json") {
		t.Fatalf("general=%+v", reports[2])
	}

	blob, err := os.ReadFile(filepath.Join(dir, "20121106__ar__general__county__20140602T150405.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(blob, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["office"] != nil || rows[0]["full_name"] != "Mitt Romney" || rows[0]["votes"] != float64(500) {
		t.Fatalf("rows=%v", rows)
	}
	if !bytes.HasPrefix(blob, []byte("[\n  {\n    \"election_id\": ")) {
		t.Fatalf("unexpected layout: %s", blob[:40])
	}
}

func TestBakeElectionFilesSingleDay(t *testing.T) {
	b := NewBaker(seededDB(t), nil)

	_, err := b.BakeElectionFiles(context.Background(), RunContext{State: "ar", OutputDir: t.TempDir(), Timestamp: runTime, Filter: Filter{DatePrefix: "20120522"}}, arElections, nil)
	if !errors.Is(err, internal.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}

	var progress bytes.Buffer
	reports, err := b.BakeElectionFiles(context.Background(), RunContext{State: "ar", OutputDir: t.TempDir(), Timestamp: runTime, Filter: Filter{DatePrefix: "2012-05-22", ElectionType: internal.RacePrimary}}, nil, &progress)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Err != nil || len(reports[0].Report.Files) != 2 {
		t.Fatalf("reports=%+v", reports)
	}
	if progress.String() != "Baking results for primary election on 20120522\n" {
		t.Fatalf("progress=%q", progress.String())
	}
}

func TestBakeIsDeterministic(t *testing.T) {
	db := seededDB(t)
	for _, format := range []Format{FormatCSV, FormatJSON} {
		for _, raw := range []bool{false, true} {
			dirA, dirB := t.TempDir(), t.TempDir()
			b := NewBaker(db, nil)
			for _, dir := range []string{dirA, dirB} {
				if _, err := b.BakeElectionFiles(context.Background(), RunContext{State: "ar", Format: format, OutputDir: dir, Timestamp: runTime, Raw: raw}, arElections, nil); err != nil {
					t.Fatal(err)
				}
			}
			a, bb := readTree(t, dirA), readTree(t, dirB)
			if len(a) == 0 || len(a) != len(bb) {
				t.Fatalf("format=%s raw=%v files a=%d b=%d", format, raw, len(a), len(bb))
			}
			for name, blob := range a {
				if !bytes.Equal(blob, bb[name]) {
					t.Fatalf("format=%s raw=%v %s differs", format, raw, name)
				}
				if raw && !strings.Contains(name, "manifest") && !strings.Contains(name, "__raw__") {
					t.Fatalf("raw file name %s", name)
				}
			}
		}
	}
}

func readTree(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string][]byte{}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		blob, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			t.Fatal(err)
		}
		out[n] = blob
	}
	return out
}

func TestRawCSVColumns(t *testing.T) {
	b := NewBaker(seededDB(t), nil)
	dir := t.TempDir()
	report, err := b.BakeStateFile(context.Background(), RunContext{State: "ar", OutputDir: dir, Timestamp: runTime, Raw: true, Filter: Filter{DatePrefix: "2014"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Files) != 1 || report.Files[0].Path != "20140520__ar__primary__county__raw__20140602T150405.csv" {
		t.Fatalf("files=%+v", report.Files)
	}
	blob, err := os.ReadFile(filepath.Join(dir, report.Files[0].Path))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(blob)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if rows[0][5] != "contest" || rows[1][5] != "State Representative District 66 - REP" || rows[1][12] != "Election Day" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestXLSXExport(t *testing.T) {
	b := NewBaker(seededDB(t), nil)
	dir := t.TempDir()
	report, err := b.BakeStateFile(context.Background(), RunContext{State: "ar", Format: "excel", OutputDir: dir, Timestamp: runTime, Filter: Filter{DatePrefix: "2014"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Files) != 1 || !strings.HasSuffix(report.Files[0].Path, ".xlsx") {
		t.Fatalf("files=%+v", report.Files)
	}
	f, err := excelize.OpenFile(filepath.Join(dir, report.Files[0].Path))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if v, _ := f.GetCellValue(sheet, "A1"); v != "election_id" {
		t.Fatalf("A1=%q", v)
	}
	if v, _ := f.GetCellValue(sheet, "I2"); v != "Jane Doe" {
		t.Fatalf("I2=%q", v)
	}
}

func TestWriteXLSXHeaderWithoutRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	if err := writeXLSX(path, normalizedColumns, nil, runTime); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || len(rows[0]) != len(normalizedColumns) || rows[0][len(rows[0])-1] != "vote_type" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := map[Format]Format{"": FormatCSV, " CSV ": FormatCSV, "json": FormatJSON, "excel": FormatXLSX, "xls": FormatXLSX, "XLSX": FormatXLSX}
	for in, want := range cases {
		if got := NormalizeFormat(in); got != want {
			t.Fatalf("in=%q got=%q", in, got)
		}
	}
}

func TestSameDayElectionsGetSeparateFiles(t *testing.T) {
	db := seededDB(t)
	special := record("ar-2012-11-06-special-general", "2012-11-06", internal.RaceGeneral, internal.LevelCounty, "Pat Roe", 77)
	if err := db.ReplaceResults("special.xml", []internal.Result{special}); err != nil {
		t.Fatal(err)
	}
	b := NewBaker(db, nil)

	dir := t.TempDir()
	report, err := b.BakeStateFile(context.Background(), RunContext{State: "ar", Format: "csv", OutputDir: dir, Timestamp: runTime, Filter: Filter{DatePrefix: "201211"}})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var written []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".csv") {
			written = append(written, e.Name())
		}
	}
	if len(written) != len(report.Files) || len(written) != 2 {
		t.Fatalf("written=%v files=%+v", written, report.Files)
	}
	if report.Files[1].Path != "20121106__ar__general__special-general__county__20140602T150405.csv" {
		t.Fatalf("path=%s", report.Files[1].Path)
	}

	days := fakeDiscovery{2012: {
		{ID: "ar-2012-11-06-general", StartDate: "2012-11-06", RaceType: internal.RaceGeneral},
		{ID: "ar-2012-11-06-special-general", StartDate: "2012-11-06", RaceType: internal.RaceGeneral, Special: true},
	}}
	perElection := t.TempDir()
	reports, err := b.BakeElectionFiles(context.Background(), RunContext{State: "ar", Format: "csv", OutputDir: perElection, Timestamp: runTime, Filter: Filter{DatePrefix: "201211"}}, days, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 || reports[0].Report.Manifest == reports[1].Report.Manifest {
		t.Fatalf("reports=%+v", reports)
	}
	for i, id := range []string{"ar-2012-11-06-general", "ar-2012-11-06-special-general"} {
		files := reports[i].Report.Files
		if reports[i].Err != nil || len(files) != 1 || files[0].Records != 1 || files[0].Elections[0] != id {
			t.Fatalf("report %d=%+v", i, reports[i])
		}
		m, err := ReadManifest(reports[i].Report.Manifest)
		if err != nil {
			t.Fatal(err)
		}
		if len(m.Filters.Elections) != 1 || m.Filters.Elections[0] != id {
			t.Fatalf("filters=%+v", m.Filters)
		}
	}
}
