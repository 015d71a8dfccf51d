package datasource

import (
	"errors"
	"strings"
	"testing"

	"resultsbakery/internal"
)

func TestOpenCatalog(t *testing.T) {
	cat, err := Open("testdata", "AR")
	if err != nil {
		t.Fatal(err)
	}
	if cat.State != "ar" {
		t.Fatalf("state=%s", cat.State)
	}
	if len(cat.Offices()) != 4 {
		t.Fatalf("offices=%v", cat.Offices())
	}
	e, ok := cat.Election("ar-2012-05-22-primary")
	if !ok {
		t.Fatal("election not indexed")
	}
	if e.State != "ar" || e.RaceType != internal.RacePrimary || e.DateKey() != "20120522" {
		t.Fatalf("unexpected election: %+v", e)
	}
}

func TestOpenMissingStateIsConfigurationError(t *testing.T) {
	_, err := Open("testdata", "zz")
	if !errors.Is(err, internal.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "zz.toml could not be loaded") {
		t.Fatalf("message should name the missing catalog: %v", err)
	}
}

func TestElectionsByYear(t *testing.T) {
	cat, err := Open("testdata", "ar")
	if err != nil {
		t.Fatal(err)
	}

	all := cat.Elections("")
	if len(all[2012]) != 3 || len(all[2014]) != 1 {
		t.Fatalf("all=%v", all)
	}
	got := all[2012]
	if got[0].StartDate != "2012-05-22" || got[1].StartDate != "2012-06-12" || got[2].StartDate != "2012-11-06" {
		t.Fatalf("not sorted: %v", got)
	}

	byYear := cat.Elections("2012")
	if len(byYear) != 1 || len(byYear[2012]) != 3 {
		t.Fatalf("2012=%v", byYear)
	}

	byDay := cat.Elections("2012-05-22")
	if len(byDay[2012]) != 1 {
		t.Fatalf("day=%v", byDay)
	}
}

func TestMappingsFilter(t *testing.T) {
	cat, err := Open("testdata", "ar")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(cat.Mappings("")); n != 4 {
		t.Fatalf("len=%d", n)
	}
	nov := cat.Mappings("201211")
	if len(nov) != 2 {
		t.Fatalf("len=%d", len(nov))
	}
	if _, ok := cat.MappingForFile("20120522__ar__primary__van_buren__precinct.xml"); !ok {
		t.Fatal("mapping not found")
	}
}

func TestRegistryCachesCatalogs(t *testing.T) {
	reg, err := NewRegistry("testdata")
	if err != nil {
		t.Fatal(err)
	}
	a, err := reg.Catalog("ar")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Catalog(" AR ")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected cached catalog")
	}
	elections, err := reg.Elections("ar", "2014")
	if err != nil {
		t.Fatal(err)
	}
	if len(elections[2014]) != 1 {
		t.Fatalf("elections=%v", elections)
	}
	if _, err := reg.Elections("zz", ""); !errors.Is(err, internal.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
}
