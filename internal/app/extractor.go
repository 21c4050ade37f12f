package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/internal/ports"
	"github.com/bft-labs/walfp/pkg/page"
	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
)

// TailPolicy decides what a malformed record ends.
type TailPolicy int

const (
	// TailStop treats a malformed record as the end of the readable WAL.
	TailStop TailPolicy = iota
	// TailFail returns the malformed record error.
	TailFail
)

// ExtractorConfig contains configuration for one extraction run.
type ExtractorConfig struct {
	// Start is where to look for the first record. InvalidLSN starts at
	// SegmentStart.
	Start wal.LSN

	// End stops the run; InvalidLSN reads to the end of the WAL.
	End wal.LSN

	// SegmentStart is the first byte of the segment named on the command line.
	SegmentStart wal.LSN

	// SegmentSize is the WAL segment size of the run.
	SegmentSize uint32

	Filter Filter

	// DryRun reconstructs pages but does not write them.
	DryRun bool

	// Follow waits for the WAL to grow instead of stopping at its end.
	Follow bool

	TailPolicy TailPolicy
}

// PageHook observes every reconstructed page. page is only valid during the call.
type PageHook func(key domain.PageKey, page []byte)

// Extractor walks the record stream and dumps the full-page images that
// pass the filters.
type Extractor struct {
	config        ExtractorConfig
	source        ports.RecordSource
	reconstructor *page.Reconstructor
	sink          ports.PageSink
	waiter        ports.Waiter
	logger        ports.Logger
	hook          PageHook
	observer      PhaseObserver

	lifecycle *Lifecycle
	report    domain.Report
	buf       []byte
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithPageHook registers a hook called with every reconstructed page.
func WithPageHook(hook PageHook) ExtractorOption {
	return func(e *Extractor) { e.hook = hook }
}

// WithWaiter sets what the extractor waits on in follow mode.
func WithWaiter(w ports.Waiter) ExtractorOption {
	return func(e *Extractor) { e.waiter = w }
}

// WithPhaseObserver registers an observer of phase changes.
func WithPhaseObserver(o PhaseObserver) ExtractorOption {
	return func(e *Extractor) { e.observer = o }
}

// NewExtractor creates a new extractor with the given dependencies.
func NewExtractor(
	config ExtractorConfig,
	source ports.RecordSource,
	reconstructor *page.Reconstructor,
	sink ports.PageSink,
	logger ports.Logger,
	opts ...ExtractorOption,
) *Extractor {
	e := &Extractor{
		config:        config,
		source:        source,
		reconstructor: reconstructor,
		sink:          sink,
		logger:        logger,
		buf:           make([]byte, page.Size),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the extraction loop until the stream ends, the end bound is
// reached or ctx is canceled. The report is valid even when err is not nil.
func (e *Extractor) Run(ctx context.Context) (domain.Report, error) {
	e.report = domain.Report{}
	e.lifecycle = NewLifecycle(e.logger, e.observer)
	if e.config.Follow && e.waiter == nil {
		return e.report, fmt.Errorf("%w: follow mode needs a waiter", domain.ErrInvalidArgument)
	}

	at, err := e.findFirst(ctx)
	if err != nil || e.lifecycle.Phase().Terminal() {
		return e.finish(err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return e.finish(err)
		}

		rec, err := e.source.ReadRecord(ctx, at)
		if err != nil {
			retry, err := e.handleReadError(ctx, at, err)
			if err != nil || !retry {
				return e.finish(err)
			}
			continue
		}
		e.report.AddRecord(rec.Start)

		if !e.config.Filter.AcceptRecord(rec.XID) {
			e.report.RecordsRejected++
			at = rec.Next()
			continue
		}

		if err := e.lifecycle.TransitionTo(domain.PhaseExtracting, "record accepted"); err != nil {
			return e.finish(err)
		}
		if err := e.dumpRecord(rec); err != nil {
			return e.finish(err)
		}
		if err := e.lifecycle.TransitionTo(domain.PhaseScanning, "record done"); err != nil {
			return e.finish(err)
		}
		at = rec.Next()
	}
}

func (e *Extractor) finish(err error) (domain.Report, error) {
	e.report.Phase = e.lifecycle.Phase()
	e.logger.Info("summary",
		ports.Int("records", e.report.RecordsRead),
		ports.Int("records_rejected", e.report.RecordsRejected),
		ports.Int("blocks", e.report.BlocksSeen),
		ports.Int("blocks_filtered", e.report.BlocksFiltered),
		ports.Int("images", e.report.ImagesDumped),
		ports.Int("images_failed", e.report.ImagesFailed),
		ports.Int64("bytes_written", e.report.BytesWritten),
		ports.Stringer("first_lsn", e.report.FirstLSN),
		ports.Stringer("last_lsn", e.report.LastLSN),
		ports.Stringer("phase", e.report.Phase),
	)
	return e.report, err
}

// findFirst positions on the first record. Without an explicit start the
// run begins at the start of the named segment.
func (e *Extractor) findFirst(ctx context.Context) (wal.LSN, error) {
	start := e.config.Start
	explicit := start.Valid()
	if !explicit {
		start = e.config.SegmentStart
	}

	for {
		first, err := e.source.FindNextRecord(ctx, start)
		if err == nil {
			if explicit && first != start && wal.SegmentOffset(start, e.config.SegmentSize) != 0 {
				skipped := uint64(first - start)
				e.report.SkippedBytes = skipped
				e.logger.Info(fmt.Sprintf("first record is after %s, at %s, skipping over %d bytes", start, first, skipped),
					ports.Stringer("start", start),
					ports.Stringer("first", first),
					ports.Uint64("skipped", skipped),
				)
			}
			return first, nil
		}

		switch {
		case errors.Is(err, xlog.ErrEndpointReached):
			return wal.InvalidLSN, e.lifecycle.TransitionTo(domain.PhaseEndpointReached, err.Error())
		case errors.Is(err, io.EOF) && e.config.End.Valid():
			return wal.InvalidLSN, e.lifecycle.TransitionTo(domain.PhaseDone, "no record before the end bound")
		case errors.Is(err, io.EOF), errors.Is(err, xlog.ErrMalformedRecord):
			if e.config.Follow {
				if err := e.wait(ctx); err != nil {
					return wal.InvalidLSN, err
				}
				continue
			}
			return wal.InvalidLSN, fmt.Errorf("%w after %s: %v", domain.ErrNoValidRecord, start, err)
		default:
			return wal.InvalidLSN, err
		}
	}
}

// handleReadError classifies a failed read at at. It returns true when it
// waited and the same position should be read again.
func (e *Extractor) handleReadError(ctx context.Context, at wal.LSN, err error) (bool, error) {
	switch {
	case errors.Is(err, xlog.ErrEndpointReached):
		return false, e.lifecycle.TransitionTo(domain.PhaseEndpointReached, err.Error())

	case errors.Is(err, io.EOF):
		if e.config.Follow && !(e.config.End.Valid() && at >= e.config.End) {
			return true, e.wait(ctx)
		}
		return false, e.lifecycle.TransitionTo(domain.PhaseDone, "end of WAL")

	case errors.Is(err, xlog.ErrMalformedRecord):
		if e.config.Follow {
			e.logger.Debug("waiting for record", ports.Stringer("lsn", at), ports.Err(err))
			return true, e.wait(ctx)
		}
		if e.config.TailPolicy == TailFail {
			return false, err
		}
		e.logger.Warn("stopping at unreadable record", ports.Stringer("lsn", at), ports.Err(err))
		return false, e.lifecycle.TransitionTo(domain.PhaseDone, "unreadable record")

	default:
		return false, err
	}
}

func (e *Extractor) wait(ctx context.Context) error {
	if err := e.waiter.Wait(ctx); err != nil {
		return err
	}
	e.source.Invalidate()
	return nil
}

// dumpRecord reconstructs and stores the images of one accepted record.
// A block whose image cannot be rebuilt is skipped; a failed write is fatal.
func (e *Extractor) dumpRecord(rec *xlog.Record) error {
	for i := range rec.Blocks {
		blk := &rec.Blocks[i]
		e.report.BlocksSeen++

		if !e.config.Filter.AcceptBlock(blk.Location()) {
			e.report.BlocksFiltered++
			continue
		}
		img := blk.ImageMetadata()
		if img == nil {
			continue
		}

		key := domain.PageKey{
			Locator: blk.Location(),
			Fork:    blk.Fork,
			Block:   blk.BlockNumber(),
			LSN:     rec.Start,
		}
		path := e.sink.Path(key)

		if err := e.reconstructor.Reconstruct(e.buf, img, blk.BlockNumber(), rec.Next()); err != nil {
			e.report.ImagesFailed++
			e.logger.Warn("failed to restore block image",
				ports.Stringer("rel", blk.Location()),
				ports.Stringer("fork", blk.Fork),
				ports.Uint32("blk", blk.BlockNumber()),
				ports.Int("block_id", int(blk.ID)),
				ports.Stringer("lsn", rec.Start),
				ports.Err(err),
			)
			continue
		}

		kind := "non-compressed"
		if img.Compressed() {
			kind = "compressed " + img.Compression.String()
		}
		e.logger.Info("dumping full-page image",
			ports.String("image", kind),
			ports.Stringer("rel", blk.Location()),
			ports.Stringer("fork", blk.Fork),
			ports.Uint32("blk", blk.BlockNumber()),
			ports.Stringer("lsn", rec.Start),
			ports.String("path", path),
			ports.Bool("dry_run", e.config.DryRun),
		)

		if e.hook != nil {
			e.hook(key, e.buf)
		}

		written := 0
		if !e.config.DryRun {
			n, err := e.sink.Write(key, e.buf)
			if err != nil {
				return fmt.Errorf("dump %s: %w", key, err)
			}
			written = n
		}
		e.report.AddImage(path, written)
	}
	return nil
}
