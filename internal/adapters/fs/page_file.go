package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/internal/ports"
)

// PageFileSink implements ports.PageSink with one file per page in a directory.
type PageFileSink struct {
	dir string
}

var _ ports.PageSink = (*PageFileSink)(nil)

// NewPageFileSink creates a new PageFileSink writing into dir.
// The directory is created on the first write.
func NewPageFileSink(dir string) *PageFileSink {
	return &PageFileSink{dir: dir}
}

// Path returns the full path of the file for key.
func (s *PageFileSink) Path(key domain.PageKey) string {
	return filepath.Join(s.dir, key.FileName())
}

// Write stores page atomically.
// Uses atomic write (write to temp file, then rename) so an interrupted run
// never leaves a truncated page under the final name.
func (s *PageFileSink) Write(key domain.PageKey, page []byte) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create destination %s: %w", s.dir, err)
	}

	path := s.Path(key)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, page, 0o644); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", tmp, err)
	}
	return len(page), nil
}

// Dir returns the destination directory.
func (s *PageFileSink) Dir() string {
	return s.dir
}
