// Package datasource is the election discovery side of the loader: per-state
// TOML catalogs listing elections, the raw files published for them, and
// the office vocabulary used to read contest labels.
package datasource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"resultsbakery/internal"
)

type Catalog struct {
	State       string              `toml:"state"`
	OCDID       string              `toml:"ocd_id"`
	OfficeNames []string            `toml:"offices"`
	ElectionSet []internal.Election `toml:"elections"`
	MappingSet  []internal.Mapping  `toml:"mappings"`

	byID map[string]internal.Election
}

// Open reads <dir>/<state>.toml.
func Open(dir, state string) (*Catalog, error) {
	state = strings.ToLower(strings.TrimSpace(state))
	if state == "" {
		return nil, fmt.Errorf("%w: state is required", internal.ErrConfiguration)
	}
	path := filepath.Join(dir, state+".toml")
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s could not be loaded. Does it exist?", internal.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", internal.ErrConfiguration, path, err)
	}
	defer file.Close()

	cat, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internal.ErrConfiguration, path, err)
	}
	if cat.State == "" {
		cat.State = state
	}
	cat.index()
	return cat, nil
}

// Decode parses a catalog without touching the filesystem.
func Decode(r io.Reader) (*Catalog, error) {
	var cat Catalog
	if err := toml.NewDecoder(r).Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	cat.State = strings.ToLower(strings.TrimSpace(cat.State))
	cat.index()
	return &cat, nil
}

func (c *Catalog) index() {
	c.byID = make(map[string]internal.Election, len(c.ElectionSet))
	for i := range c.ElectionSet {
		if c.ElectionSet[i].State == "" {
			c.ElectionSet[i].State = c.State
		}
		c.byID[c.ElectionSet[i].ID] = c.ElectionSet[i]
	}
}

// StateOCDID returns the catalog's state division id, deriving the
// conventional one when the catalog does not carry it.
func (c *Catalog) StateOCDID() string {
	if c.OCDID != "" {
		return c.OCDID
	}
	return "ocd-division/country:us/state:" + c.State
}

// Offices returns the office vocabulary, or nil when the catalog has none.
func (c *Catalog) Offices() []string {
	return c.OfficeNames
}

func (c *Catalog) Election(id string) (internal.Election, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Elections groups the elections whose YYYYMMDD start date begins with
// datefilter by year, each year sorted by date then race type.
func (c *Catalog) Elections(datefilter string) map[int][]internal.Election {
	prefix := strings.ReplaceAll(strings.TrimSpace(datefilter), "-", "")
	out := map[int][]internal.Election{}
	for _, e := range c.ElectionSet {
		if !strings.HasPrefix(e.DateKey(), prefix) {
			continue
		}
		yr, err := strconv.Atoi(e.Year())
		if err != nil {
			continue
		}
		out[yr] = append(out[yr], e)
	}
	for yr := range out {
		list := out[yr]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].StartDate != list[j].StartDate {
				return list[i].StartDate < list[j].StartDate
			}
			return list[i].RaceType < list[j].RaceType
		})
	}
	return out
}

// Mappings returns, in catalog order, the mappings whose election matches
// datefilter. Mappings pointing at unknown elections are kept only when no
// filter is given.
func (c *Catalog) Mappings(datefilter string) []internal.Mapping {
	prefix := strings.ReplaceAll(strings.TrimSpace(datefilter), "-", "")
	out := make([]internal.Mapping, 0, len(c.MappingSet))
	for _, m := range c.MappingSet {
		e, ok := c.byID[m.Election]
		if prefix != "" && (!ok || !strings.HasPrefix(e.DateKey(), prefix)) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Catalog) MappingForFile(name string) (internal.Mapping, bool) {
	for _, m := range c.MappingSet {
		if m.GeneratedFilename == name {
			return m, true
		}
	}
	return internal.Mapping{}, false
}
