package bakery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("resultsbakery:bake-run"))

type ManifestEntry struct {
	Path        string   `json:"path"`
	Elections   []string `json:"elections"`
	Format      string   `json:"format"`
	Level       string   `json:"level"`
	Records     int      `json:"records"`
	GeneratedAt string   `json:"generated_at"`
}

type ManifestFilters struct {
	DatePrefix     string   `json:"datefilter,omitempty"`
	ElectionType   string   `json:"electiontype,omitempty"`
	ReportingLevel string   `json:"level,omitempty"`
	Elections      []string `json:"elections,omitempty"`
}

type Manifest struct {
	RunID       string          `json:"run_id"`
	State       string          `json:"state"`
	GeneratedAt string          `json:"generated_at"`
	Format      string          `json:"format"`
	Raw         bool            `json:"raw"`
	Filters     ManifestFilters `json:"filters"`
	Files       []ManifestEntry `json:"files"`
}

// RunID is derived from the run's inputs, so the same run yields the same id.
func RunID(run RunContext) string {
	parts := []string{
		run.state(),
		string(run.Format),
		strconv.FormatBool(run.Raw),
		run.Filter.DatePrefix,
		string(run.Filter.ElectionType),
		string(run.Filter.ReportingLevel),
		strings.Join(run.Filter.ElectionIDs, ","),
		run.stamp(),
	}
	return uuid.NewSHA1(runNamespace, []byte(strings.Join(parts, "|"))).String()
}

func newManifest(run RunContext, entries []ManifestEntry) Manifest {
	files := append([]ManifestEntry(nil), entries...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	if files == nil {
		files = []ManifestEntry{}
	}
	return Manifest{
		RunID:       RunID(run),
		State:       run.state(),
		GeneratedAt: run.Timestamp.UTC().Format(time.RFC3339),
		Format:      string(run.Format),
		Raw:         run.Raw,
		Filters: ManifestFilters{
			DatePrefix:     run.Filter.DatePrefix,
			ElectionType:   string(run.Filter.ElectionType),
			ReportingLevel: string(run.Filter.ReportingLevel),
			Elections:      run.Filter.ElectionIDs,
		},
		Files: files,
	}
}

func writeManifest(path string, m Manifest) error {
	blob, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(blob, '\n'), 0o644)
}

// ReadManifest loads a manifest written by a previous run.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	blob, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(blob, &m)
	return m, err
}
