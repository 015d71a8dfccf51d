package storage

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"resultsbakery/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  electionId TEXT NOT NULL,
  state TEXT NOT NULL,
  startDate TEXT NOT NULL,
  raceType TEXT NOT NULL,
  office TEXT,
  district TEXT,
  party TEXT,
  primaryParty TEXT,
  fullName TEXT NOT NULL,
  reportingLevel TEXT NOT NULL,
  jurisdiction TEXT NOT NULL,
  ocdId TEXT NOT NULL,
  votes INTEGER NOT NULL CHECK (votes >= 0),
  voteType TEXT,
  rawContest TEXT NOT NULL,
  rawVoteType TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_source ON results(source);
CREATE INDEX IF NOT EXISTS idx_results_state_date ON results(state, startDate);

CREATE TABLE IF NOT EXISTS load_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  source TEXT NOT NULL,
  electionId TEXT,
  format TEXT NOT NULL,
  status TEXT NOT NULL,
  records INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_load_runs_source ON load_runs(source);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplaceResults supersedes every record previously loaded from source with
// results, in one transaction. Insertion order is preserved.
func (d *DB) ReplaceResults(source string, results []internal.Result) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM results WHERE source = ?`, source); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO results (
  source, electionId, state, startDate, raceType,
  office, district, party, primaryParty, fullName,
  reportingLevel, jurisdiction, ocdId, votes, voteType,
  rawContest, rawVoteType
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		var voteType *string
		if r.VoteType != nil {
			v := string(*r.VoteType)
			voteType = &v
		}
		if _, err := stmt.Exec(
			source, r.ElectionID, r.State, r.StartDate, string(r.RaceType),
			r.Office, r.District, r.Party, r.PrimaryParty, r.FullName,
			string(r.ReportingLevel), r.Jurisdiction, r.OCDID, r.Votes, voteType,
			r.RawContest, r.RawVoteType,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ResultQuery filters QueryResults. Empty fields match everything;
// DatePrefix is compared against the YYYYMMDD form of the start date.
type ResultQuery struct {
	State          string
	DatePrefix     string
	RaceType       internal.RaceType
	ReportingLevel internal.ReportingLevel
	ElectionIDs    []string
}

// QueryResults returns matching records ordered by election, reporting
// level and load order.
func (d *DB) QueryResults(q ResultQuery) ([]internal.Result, error) {
	var where []string
	var args []any
	if q.State != "" {
		where = append(where, "state = ?")
		args = append(args, strings.ToUpper(q.State))
	}
	if p := strings.ReplaceAll(q.DatePrefix, "-", ""); p != "" {
		where = append(where, "replace(startDate, '-', '') LIKE ?")
		args = append(args, p+"%")
	}
	if q.RaceType != "" {
		where = append(where, "raceType = ?")
		args = append(args, string(q.RaceType))
	}
	if q.ReportingLevel != "" {
		where = append(where, "reportingLevel = ?")
		args = append(args, string(q.ReportingLevel))
	}
	if len(q.ElectionIDs) > 0 {
		where = append(where, "electionId IN ("+strings.TrimSuffix(strings.Repeat("?,", len(q.ElectionIDs)), ",")+")")
		for _, id := range q.ElectionIDs {
			args = append(args, id)
		}
	}

	query := `
SELECT source, electionId, state, startDate, raceType,
       office, district, party, primaryParty, fullName,
       reportingLevel, jurisdiction, ocdId, votes, voteType,
       rawContest, rawVoteType
FROM results`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY electionId ASC, reportingLevel ASC, id ASC"

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Result
	for rows.Next() {
		var r internal.Result
		var raceType, level string
		var voteType *string
		if err := rows.Scan(
			&r.Source, &r.ElectionID, &r.State, &r.StartDate, &raceType,
			&r.Office, &r.District, &r.Party, &r.PrimaryParty, &r.FullName,
			&level, &r.Jurisdiction, &r.OCDID, &r.Votes, &voteType,
			&r.RawContest, &r.RawVoteType,
		); err != nil {
			return nil, err
		}
		r.RaceType = internal.RaceType(raceType)
		r.ReportingLevel = internal.ReportingLevel(level)
		if voteType != nil {
			vt := internal.VoteType(*voteType)
			r.VoteType = &vt
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) CountResults(source string) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM results WHERE source = ?`, source).Scan(&n)
	return n, err
}

type LoadRun struct {
	ID         int
	TraceID    string
	Source     string
	ElectionID string
	Format     string
	Status     string
	Records    int
	Error      *string
	CreatedAt  string
}

func (d *DB) InsertLoadRun(run LoadRun, timings map[string]float64) error {
	timingsJSON, _ := json.Marshal(timings)
	_, err := d.conn.Exec(`
INSERT INTO load_runs (traceId, source, electionId, format, status, records, error, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.Source, run.ElectionID, run.Format, run.Status, run.Records, run.Error, string(timingsJSON))
	return err
}

// ListLoadRuns returns the most recent runs first.
func (d *DB) ListLoadRuns(limit int) ([]LoadRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(`
SELECT id, traceId, source, COALESCE(electionId, ''), format, status, records, error, createdAt
FROM load_runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoadRun
	for rows.Next() {
		var run LoadRun
		if err := rows.Scan(&run.ID, &run.TraceID, &run.Source, &run.ElectionID, &run.Format, &run.Status, &run.Records, &run.Error, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
