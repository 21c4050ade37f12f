// Package walfp extracts full-page images from PostgreSQL write-ahead log
// segments and writes each one as a standalone 8 KiB page file.
//
// Example usage:
//
//	cfg := walfp.DefaultConfig()
//	cfg.WALPath = "/var/lib/postgresql/16/main/pg_wal/000000010000000000000003"
//	cfg.Relations = []uint{16384}
//	cfg.Dest = "/tmp/pages"
//	report, err := walfp.Run(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.ImagesDumped)
package walfp

import (
	"context"
	"fmt"

	"github.com/bft-labs/walfp/internal/adapters/checksum"
	"github.com/bft-labs/walfp/internal/adapters/fs"
	"github.com/bft-labs/walfp/internal/app"
	"github.com/bft-labs/walfp/internal/cliconfig"
	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/pkg/log"
	"github.com/bft-labs/walfp/pkg/page"
	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
)

// Config holds the configuration of one extraction run.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Report summarizes a run.
type Report = domain.Report

// PageKey identifies a dumped page.
type PageKey = domain.PageKey

// Phase is the dispatch phase of a run.
type Phase = domain.Phase

// Sentinel errors callers can match with errors.Is.
var (
	ErrInvalidArgument = domain.ErrInvalidArgument
	ErrNoValidRecord   = domain.ErrNoValidRecord
	ErrMalformedRecord = xlog.ErrMalformedRecord
)

// DefaultConfig returns a Config with sensible default values.
// At minimum, WALPath must be set before calling Run.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Run validates cfg and extracts every matching full-page image. It blocks
// until the WAL ends, the end location is reached or ctx is cancelled. The
// report is filled in even when an error is returned.
func Run(ctx context.Context, cfg Config, opts ...Option) (Report, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if err := cliconfig.ResolveWALPath(&cfg); err != nil {
		return Report{}, err
	}

	desc, err := wal.DescribeSegment(cfg.WALPath)
	if err != nil {
		return Report{}, fmt.Errorf("read WAL file: %w", err)
	}
	o.logger.Debug("WAL segment",
		log.String("file", desc.Name),
		log.Uint32("segment_size", desc.SegmentSize),
		log.Stringer("segment_start", desc.Start()),
	)

	reader := wal.NewSegmentReader(desc.Dir, desc.TimeLine, desc.SegmentSize, o.logger)
	defer reader.Close()

	cursorOpts := []xlog.CursorOption{xlog.WithLogger(o.logger)}
	if cfg.End.Valid() {
		cursorOpts = append(cursorOpts, xlog.WithEnd(cfg.End))
	}
	cursor, err := xlog.NewCursor(reader, desc, cursorOpts...)
	if err != nil {
		return Report{}, err
	}

	zstd, err := page.NewZstdDecompressor()
	if err != nil {
		return Report{}, err
	}
	defer zstd.Close()
	pageOpts := []page.Option{page.WithDecompressor(xlog.CompressionZstd, zstd)}
	if cfg.Check {
		pageOpts = append(pageOpts, page.WithChecksum(checksum.Page))
	}

	extractorOpts := []app.ExtractorOption{}
	if o.hook != nil {
		extractorOpts = append(extractorOpts, app.WithPageHook(app.PageHook(o.hook)))
	}
	if o.observer != nil {
		extractorOpts = append(extractorOpts, app.WithPhaseObserver(o.observer))
	}
	if cfg.Follow {
		follower, err := wal.NewFollower(desc.Dir, cfg.PollInterval, cfg.MaxPollInterval, o.logger)
		if err != nil {
			return Report{}, err
		}
		defer follower.Close()
		extractorOpts = append(extractorOpts, app.WithWaiter(follower))
	}

	policy := app.TailStop
	if cfg.OnMalformed == cliconfig.OnMalformedFail {
		policy = app.TailFail
	}

	sink := fs.NewPageFileSink(cfg.Dest)
	o.logger.Info("extracting full-page images",
		log.String("wal", desc.Name),
		log.String("dest", sink.Dir()),
		log.Bool("dry_run", cfg.DryRun),
	)

	extractor := app.NewExtractor(
		app.ExtractorConfig{
			Start:        cfg.Start,
			End:          cfg.End,
			SegmentStart: desc.Start(),
			SegmentSize:  desc.SegmentSize,
			Filter:       app.NewFilter(cfg.TransactionFilter(), cfg.RelationFilter()),
			DryRun:       cfg.DryRun,
			Follow:       cfg.Follow,
			TailPolicy:   policy,
		},
		cursor,
		page.NewReconstructor(pageOpts...),
		sink,
		o.logger,
		extractorOpts...,
	)
	return extractor.Run(ctx)
}
