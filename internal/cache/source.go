// Package cache resolves mappings to readable raw files. Sources never
// leave handles open: callers own the returned ReadCloser.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"resultsbakery/internal"
)

type Source interface {
	Open(ctx context.Context, m internal.Mapping) (io.ReadCloser, error)
}

// LocalSource reads raw files from a directory keyed by generated filename.
type LocalSource struct {
	Dir string
}

func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{Dir: dir}
}

func (s *LocalSource) Path(m internal.Mapping) string {
	return filepath.Join(s.Dir, filepath.Base(m.GeneratedFilename))
}

func (s *LocalSource) Open(_ context.Context, m internal.Mapping) (io.ReadCloser, error) {
	if strings.TrimSpace(m.GeneratedFilename) == "" {
		return nil, fmt.Errorf("%w: mapping has no generated filename", internal.ErrSourceUnavailable)
	}
	f, err := os.Open(s.Path(m))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internal.ErrSourceUnavailable, m.GeneratedFilename, err)
	}
	return f, nil
}
