package pipeline

import (
	"regexp"
	"strings"

	"resultsbakery/internal/util"
)

// DefaultOffices is used when a state catalog carries no vocabulary of its
// own. Order matters: earlier names win when two could match.
var DefaultOffices = []string{
	"State Senate",
	"U.S. President",
	"State Representative",
	"U.S. Senate",
	"U.S. House of Representatives",
	"Governor",
	"Lieutenant Governor",
	"Attorney General",
	"Secretary of State",
}

// ContestResolver reads office, district and primary party out of a
// contest label using one pattern compiled from an office vocabulary.
type ContestResolver struct {
	offices []string
	byLower map[string]string
	re      *regexp.Regexp
}

func NewContestResolver(offices []string) *ContestResolver {
	if len(offices) == 0 {
		offices = DefaultOffices
	}
	r := &ContestResolver{byLower: make(map[string]string, len(offices))}
	alts := make([]string, 0, len(offices))
	for _, o := range offices {
		o = util.NormalizeLabel(o)
		if o == "" {
			continue
		}
		key := strings.ToLower(o)
		if _, dup := r.byLower[key]; dup {
			continue
		}
		r.byLower[key] = o
		r.offices = append(r.offices, o)
		alts = append(alts, regexp.QuoteMeta(o))
	}
	if len(alts) == 0 {
		return r
	}
	r.re = regexp.MustCompile(`(?i)^\s*(` + strings.Join(alts, "|") + `)(?:\s+district\s+(\d+))?(?:\s*-\s*([a-z]+))?\s*$`)
	return r
}

func (r *ContestResolver) Offices() []string {
	return r.offices
}

// Resolve never fails. A label that matches no known office yields three
// nils; district and party are nil when the label carries none.
func (r *ContestResolver) Resolve(label string) (office, district, party *string) {
	if r.re == nil {
		return nil, nil, nil
	}
	m := r.re.FindStringSubmatch(util.NormalizeLabel(label))
	if m == nil {
		return nil, nil, nil
	}
	office = util.StringPtr(r.byLower[strings.ToLower(m[1])])
	if m[2] != "" {
		district = util.StringPtr(m[2])
	}
	if m[3] != "" {
		party = util.StringPtr(strings.ToUpper(m[3]))
	}
	return office, district, party
}
