package pipeline

import (
	"strings"

	"resultsbakery/internal"
	"resultsbakery/internal/clarity"
	"resultsbakery/internal/util"
)

// Region is the whole area a source file reports on.
type Region struct {
	Name  string
	Level internal.ReportingLevel
	OCDID string
}

// ResolveJurisdiction returns the reporting level, name and division id for
// a result. A nil descriptor stands for the whole region.
func ResolveJurisdiction(j *clarity.Jurisdiction, parent Region) (internal.ReportingLevel, string, string) {
	if j == nil {
		return parent.Level, parent.Name, parent.OCDID
	}
	level, ok := internal.ParseReportingLevel(j.Level)
	if !ok {
		level = internal.LevelPrecinct
	}
	return level, j.Name, parent.OCDID + "/" + string(level) + ":" + util.Slug(j.Name)
}

// RegionOCDID derives the division id for a whole file. The mapping's own
// id wins; a state-level or unnamed region is the state itself.
func RegionOCDID(stateOCD string, level internal.ReportingLevel, regionName string, m internal.Mapping) string {
	if id := strings.TrimSpace(m.OCDID); id != "" {
		return id
	}
	if level == internal.LevelState {
		return stateOCD
	}
	name := regionName
	if name == "" {
		name = m.Name
	}
	slug := util.Slug(name)
	if slug == "" {
		return stateOCD
	}
	return stateOCD + "/" + string(level) + ":" + slug
}
