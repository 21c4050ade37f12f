package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bft-labs/walfp/pkg/wal"
)

// ResolveWALPath turns a directory in cfg.WALPath into a segment file. With
// a start location the segment holding it is chosen, otherwise the oldest
// segment in the directory. A file path is left as is.
func ResolveWALPath(cfg *Config) error {
	fi, err := os.Stat(cfg.WALPath)
	if err != nil {
		return fmt.Errorf("open WAL path: %w", err)
	}
	if !fi.IsDir() {
		return nil
	}

	names, err := segmentNames(cfg.WALPath)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return invalid("no WAL segment files in %s", cfg.WALPath)
	}
	oldest := filepath.Join(cfg.WALPath, names[0])
	if !cfg.Start.Valid() {
		cfg.WALPath = oldest
		return nil
	}

	desc, err := wal.DescribeSegment(oldest)
	if err != nil {
		return fmt.Errorf("read segment size: %w", err)
	}
	segNo := wal.SegmentOf(cfg.Start, desc.SegmentSize)
	want := wal.SegmentFileName(desc.TimeLine, segNo, desc.SegmentSize)
	cfg.WALPath = filepath.Join(cfg.WALPath, want)
	return nil
}

// segmentNames lists the segment file names in dir in WAL order.
func segmentNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		// The smallest segment size allows the widest low field.
		if _, _, err := wal.ParseSegmentFileName(e.Name(), wal.MinSegmentSize); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
