// Package clarity reads the detail XML reports exported by Clarity
// election-night reporting sites.
//
// A report covers one region (a county, or a whole state). Each contest
// lists its choices; every choice carries one VoteType element per ballot
// category, with the category total on the element and a breakdown per
// sub-jurisdiction (precincts in county reports, counties in state
// reports) as children. Contest-level VoteType elements hold the
// over/under vote counts that have no choice.
//
// Results flattens that tree into one entry per (contest, choice,
// jurisdiction, vote type). The category total appears as an entry whose
// Jurisdiction is nil.
package clarity

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"resultsbakery/internal/util"
)

type Jurisdiction struct {
	Name             string
	Level            string
	TotalVoters      int
	BallotsCast      int
	PercentReporting string
}

type Contest struct {
	Key        string
	Text       string
	VoteFor    int
	IsQuestion bool
}

type Choice struct {
	Key   string
	Text  string
	Party string
}

// Result is one reported count. Choice is nil for pseudo-candidate counts
// (overvotes/undervotes); Jurisdiction is nil for the region-wide total.
// BadVotes is set when the count attribute could not be read.
type Result struct {
	Contest      *Contest
	Choice       *Choice
	Jurisdiction *Jurisdiction
	VoteType     string
	Votes        int
	BadVotes     bool
}

type Document struct {
	Timestamp     string
	ElectionName  string
	ElectionDate  string
	Region        string
	Level         string
	Jurisdictions []*Jurisdiction
	Contests      []*Contest
	Results       []Result
}

type xmlReport struct {
	XMLName      xml.Name     `xml:"ElectionResult"`
	Timestamp    string       `xml:"Timestamp"`
	ElectionName string       `xml:"ElectionName"`
	ElectionDate string       `xml:"ElectionDate"`
	Region       string       `xml:"Region"`
	Precincts    []xmlArea    `xml:"VoterTurnout>Precincts>Precinct"`
	Counties     []xmlArea    `xml:"VoterTurnout>Counties>County"`
	Contests     []xmlContest `xml:"Contest"`
}

type xmlArea struct {
	Name             string `xml:"name,attr"`
	Votes            string `xml:"votes,attr"`
	TotalVoters      string `xml:"totalVoters,attr"`
	BallotsCast      string `xml:"ballotsCast,attr"`
	PercentReporting string `xml:"percentReporting,attr"`
}

type xmlContest struct {
	Key        string        `xml:"key,attr"`
	Text       string        `xml:"text,attr"`
	VoteFor    string        `xml:"voteFor,attr"`
	IsQuestion string        `xml:"isQuestion,attr"`
	Choices    []xmlChoice   `xml:"Choice"`
	VoteTypes  []xmlVoteType `xml:"VoteType"`
}

type xmlChoice struct {
	Key       string        `xml:"key,attr"`
	Text      string        `xml:"text,attr"`
	Party     string        `xml:"party,attr"`
	VoteTypes []xmlVoteType `xml:"VoteType"`
}

type xmlVoteType struct {
	Name      string    `xml:"name,attr"`
	Votes     string    `xml:"votes,attr"`
	Precincts []xmlArea `xml:"Precinct"`
	Counties  []xmlArea `xml:"County"`
}

// Parse tokenizes a detail report. Any XML error is returned as is;
// unreadable counts inside a well-formed report are flagged per result.
func Parse(r io.Reader) (*Document, error) {
	var rep xmlReport
	dec := xml.NewDecoder(r)
	dec.CharsetReader = passthroughCharset
	if err := dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode clarity report: %w", err)
	}

	doc := &Document{
		Timestamp:    util.NormalizeLabel(rep.Timestamp),
		ElectionName: util.NormalizeLabel(rep.ElectionName),
		ElectionDate: util.NormalizeLabel(rep.ElectionDate),
		Region:       util.NormalizeLabel(rep.Region),
		Level:        "county",
	}

	subLevel := "precinct"
	areas := rep.Precincts
	if len(rep.Counties) > 0 {
		doc.Level = "state"
		subLevel = "county"
		areas = rep.Counties
	}

	byName := map[string]*Jurisdiction{}
	for _, a := range areas {
		j := newJurisdiction(a, subLevel)
		byName[j.Name] = j
		doc.Jurisdictions = append(doc.Jurisdictions, j)
	}
	lookup := func(a xmlArea, level string) *Jurisdiction {
		name := util.NormalizeLabel(a.Name)
		if j, ok := byName[name]; ok {
			return j
		}
		j := newJurisdiction(a, level)
		byName[name] = j
		doc.Jurisdictions = append(doc.Jurisdictions, j)
		return j
	}

	for _, xc := range rep.Contests {
		contest := &Contest{
			Key:        xc.Key,
			Text:       util.NormalizeLabel(xc.Text),
			IsQuestion: strings.EqualFold(strings.TrimSpace(xc.IsQuestion), "true"),
		}
		contest.VoteFor, _ = util.ParseVotes(xc.VoteFor)
		doc.Contests = append(doc.Contests, contest)

		for _, xch := range xc.Choices {
			choice := &Choice{Key: xch.Key, Text: util.NormalizeLabel(xch.Text), Party: strings.TrimSpace(xch.Party)}
			for _, vt := range xch.VoteTypes {
				doc.Results = appendVoteType(doc.Results, contest, choice, vt, lookup)
			}
		}
		for _, vt := range xc.VoteTypes {
			doc.Results = appendVoteType(doc.Results, contest, nil, vt, lookup)
		}
	}
	return doc, nil
}

func appendVoteType(out []Result, contest *Contest, choice *Choice, vt xmlVoteType, lookup func(xmlArea, string) *Jurisdiction) []Result {
	name := util.NormalizeLabel(vt.Name)
	votes, ok := util.ParseVotes(vt.Votes)
	out = append(out, Result{Contest: contest, Choice: choice, VoteType: name, Votes: votes, BadVotes: !ok})
	for _, a := range vt.Precincts {
		v, ok := util.ParseVotes(a.Votes)
		out = append(out, Result{Contest: contest, Choice: choice, Jurisdiction: lookup(a, "precinct"), VoteType: name, Votes: v, BadVotes: !ok})
	}
	for _, a := range vt.Counties {
		v, ok := util.ParseVotes(a.Votes)
		out = append(out, Result{Contest: contest, Choice: choice, Jurisdiction: lookup(a, "county"), VoteType: name, Votes: v, BadVotes: !ok})
	}
	return out
}

func newJurisdiction(a xmlArea, level string) *Jurisdiction {
	j := &Jurisdiction{
		Name:             util.NormalizeLabel(a.Name),
		Level:            level,
		PercentReporting: strings.TrimSpace(a.PercentReporting),
	}
	j.TotalVoters, _ = util.ParseVotes(a.TotalVoters)
	j.BallotsCast, _ = util.ParseVotes(a.BallotsCast)
	return j
}

// Clarity exports declare utf-8 or iso-8859-1; names are ASCII in practice.
func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}
