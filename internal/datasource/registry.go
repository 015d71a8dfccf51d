package datasource

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"resultsbakery/internal"
)

// Registry opens catalogs from a directory and keeps recently used ones.
type Registry struct {
	dir   string
	cache *lru.Cache[string, *Catalog]
}

func NewRegistry(dir string) (*Registry, error) {
	cache, err := lru.New[string, *Catalog](16)
	if err != nil {
		return nil, err
	}
	return &Registry{dir: dir, cache: cache}, nil
}

func (r *Registry) Catalog(state string) (*Catalog, error) {
	key := strings.ToLower(strings.TrimSpace(state))
	if cat, ok := r.cache.Get(key); ok {
		return cat, nil
	}
	cat, err := Open(r.dir, key)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, cat)
	return cat, nil
}

// Elections implements the discovery contract used by the bakery.
func (r *Registry) Elections(state, datefilter string) (map[int][]internal.Election, error) {
	cat, err := r.Catalog(state)
	if err != nil {
		return nil, err
	}
	return cat.Elections(datefilter), nil
}
