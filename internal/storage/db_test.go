package storage

import (
	"path/filepath"
	"testing"

	"resultsbakery/internal"
)

func sp(v string) *string { return &v }

func vt(v internal.VoteType) *internal.VoteType { return &v }

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sample(election, date, name string, level internal.ReportingLevel, votes int) internal.Result {
	return internal.Result{
		ElectionID:     election,
		State:          "AR",
		StartDate:      date,
		RaceType:       internal.RacePrimary,
		Office:         sp("State Representative"),
		District:       sp("66"),
		PrimaryParty:   sp("REP"),
		FullName:       name,
		ReportingLevel: level,
		Jurisdiction:   "Van Buren",
		OCDID:          "ocd-division/country:us/state:ar/county:van_buren",
		Votes:          votes,
		VoteType:       vt(internal.VoteElectionDay),
		RawContest:     "State Representative District 66 - REP",
		RawVoteType:    "Election Day",
	}
}

func TestReplaceResultsSupersedesSource(t *testing.T) {
	db := openTestDB(t)

	first := []internal.Result{
		sample("ar-2012-05-22-primary", "2012-05-22", "Jim Smith", internal.LevelCounty, 10),
		sample("ar-2012-05-22-primary", "2012-05-22", "David Branscum", internal.LevelCounty, 12),
	}
	if err := db.ReplaceResults("a.xml", first); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceResults("a.xml", first[:1]); err != nil {
		t.Fatal(err)
	}
	n, err := db.CountResults("a.xml")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("len=%d", n)
	}
}

func TestQueryResultsFiltersAndOrder(t *testing.T) {
	db := openTestDB(t)

	primary := []internal.Result{
		sample("ar-2012-05-22-primary", "2012-05-22", "B", internal.LevelPrecinct, 1),
		sample("ar-2012-05-22-primary", "2012-05-22", "A", internal.LevelCounty, 2),
		sample("ar-2012-05-22-primary", "2012-05-22", "C", internal.LevelPrecinct, 3),
	}
	general := sample("ar-2012-11-06-general", "2012-11-06", "D", internal.LevelCounty, 4)
	general.RaceType = internal.RaceGeneral
	general.Office, general.District, general.PrimaryParty, general.VoteType = nil, nil, nil, nil
	later := sample("ar-2014-05-20-primary", "2014-05-20", "E", internal.LevelCounty, 5)

	if err := db.ReplaceResults("p.xml", primary); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceResults("g.xml", []internal.Result{general}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceResults("l.xml", []internal.Result{later}); err != nil {
		t.Fatal(err)
	}

	all, err := db.QueryResults(ResultQuery{State: "ar", DatePrefix: "2012"})
	if err != nil {
		t.Fatal(err)
	}
	var names string
	for _, r := range all {
		names += r.FullName
	}
	if names != "ABCD" {
		t.Fatalf("order=%s", names)
	}
	if all[3].Office != nil || all[3].VoteType != nil || all[3].RaceType != internal.RaceGeneral {
		t.Fatalf("nulls not preserved: %+v", all[3])
	}
	if all[0].VoteType == nil || *all[0].VoteType != internal.VoteElectionDay || all[0].Source != "p.xml" {
		t.Fatalf("first=%+v", all[0])
	}

	precincts, err := db.QueryResults(ResultQuery{State: "AR", DatePrefix: "2012-05-22", RaceType: internal.RacePrimary, ReportingLevel: internal.LevelPrecinct})
	if err != nil {
		t.Fatal(err)
	}
	if len(precincts) != 2 {
		t.Fatalf("len=%d", len(precincts))
	}

	byID, err := db.QueryResults(ResultQuery{ElectionIDs: []string{"ar-2014-05-20-primary", "ar-2012-11-06-general"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 2 {
		t.Fatalf("len=%d", len(byID))
	}
}

func TestLoadRuns(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertLoadRun(LoadRun{TraceID: "t1", Source: "a.xml", ElectionID: "e", Format: "clarity_detail", Status: "loaded", Records: 3}, map[string]float64{"totalMs": 1}); err != nil {
		t.Fatal(err)
	}
	msg := "source unavailable"
	if err := db.InsertLoadRun(LoadRun{TraceID: "t2", Source: "b.xml", Format: "clarity_detail", Status: "failed", Error: &msg}, nil); err != nil {
		t.Fatal(err)
	}
	runs, err := db.ListLoadRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Source != "b.xml" || runs[0].Error == nil || runs[1].Records != 3 {
		t.Fatalf("runs=%+v", runs)
	}
}
