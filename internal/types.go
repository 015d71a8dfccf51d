package internal

import (
	"errors"
	"strings"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrMalformedSource   = errors.New("malformed source")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

type RaceType string

const (
	RaceGeneral RaceType = "general"
	RacePrimary RaceType = "primary"
	RaceSpecial RaceType = "special"
	RaceRunoff  RaceType = "runoff"
)

type ReportingLevel string

const (
	LevelState         ReportingLevel = "state"
	LevelCongressional ReportingLevel = "congressional_district"
	LevelStateLegUpper ReportingLevel = "state_legislative_upper"
	LevelStateLegLower ReportingLevel = "state_legislative_lower"
	LevelCounty        ReportingLevel = "county"
	LevelMunicipality  ReportingLevel = "municipality"
	LevelPrecinct      ReportingLevel = "precinct"
)

var reportingLevels = []ReportingLevel{
	LevelState, LevelCongressional, LevelStateLegUpper, LevelStateLegLower,
	LevelCounty, LevelMunicipality, LevelPrecinct,
}

// ParseReportingLevel accepts any known level name, case-insensitively.
func ParseReportingLevel(s string) (ReportingLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range reportingLevels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

type VoteType string

const (
	VoteElectionDay VoteType = "election_day"
	VoteAbsentee    VoteType = "absentee"
	VoteEarly       VoteType = "early"
	VoteProvisional VoteType = "provisional"
	VoteMail        VoteType = "mail"
)

// Mapping describes one raw source file as catalogued for an election.
// RawURL is empty when the catalog has no URL for the file.
type Mapping struct {
	GeneratedFilename string `toml:"generated_filename" json:"generated_filename"`
	Election          string `toml:"election" json:"election"`
	RawURL            string `toml:"raw_url" json:"raw_url,omitempty"`
	OCDID             string `toml:"ocd_id" json:"ocd_id,omitempty"`
	Name              string `toml:"name" json:"name,omitempty"`
}

type Election struct {
	ID        string   `toml:"id" json:"id"`
	State     string   `toml:"state" json:"state"`
	StartDate string   `toml:"start_date" json:"start_date"`
	RaceType  RaceType `toml:"race_type" json:"race_type"`
	Special   bool     `toml:"special" json:"special"`
}

// DateKey returns the start date as YYYYMMDD.
func (e Election) DateKey() string {
	return strings.ReplaceAll(e.StartDate, "-", "")
}

func (e Election) Year() string {
	if len(e.StartDate) < 4 {
		return ""
	}
	return e.StartDate[:4]
}

// Result is the canonical result record. Pointer fields are nil when the
// source value could not be resolved; the record is kept regardless.
type Result struct {
	ElectionID     string
	State          string
	StartDate      string
	RaceType       RaceType
	Source         string
	Office         *string
	District       *string
	Party          *string
	PrimaryParty   *string
	FullName       string
	ReportingLevel ReportingLevel
	Jurisdiction   string
	OCDID          string
	Votes          int
	VoteType       *VoteType
	RawContest     string
	RawVoteType    string
}
