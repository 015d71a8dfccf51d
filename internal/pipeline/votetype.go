package pipeline

import (
	"strings"

	"resultsbakery/internal"
	"resultsbakery/internal/util"
)

var voteTypeLabels = map[string]internal.VoteType{
	"election day":        internal.VoteElectionDay,
	"election":            internal.VoteElectionDay,
	"polling place":       internal.VoteElectionDay,
	"early vote":          internal.VoteEarly,
	"early voting":        internal.VoteEarly,
	"early":               internal.VoteEarly,
	"absentee":            internal.VoteAbsentee,
	"absentee vote":       internal.VoteAbsentee,
	"absentee by mail":    internal.VoteAbsentee,
	"provisional":         internal.VoteProvisional,
	"provisional ballots": internal.VoteProvisional,
	"mail":                internal.VoteMail,
	"vote by mail":        internal.VoteMail,
	"mail ballots":        internal.VoteMail,
}

// CanonicalVoteType maps a vendor vote-category label to its canonical
// value. Unknown labels, including totals and the over/under pseudo
// categories, return nil.
func CanonicalVoteType(label string) *internal.VoteType {
	key := strings.ToLower(util.NormalizeLabel(label))
	vt, ok := voteTypeLabels[key]
	if !ok {
		return nil
	}
	return &vt
}
