package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walfp/internal/adapters/checksum"
	"github.com/bft-labs/walfp/internal/adapters/fs"
	logadapter "github.com/bft-labs/walfp/internal/adapters/log"
	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/internal/ports"
	"github.com/bft-labs/walfp/pkg/page"
	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
	"github.com/bft-labs/walfp/pkg/xlog/xlogtest"
)

var testRel = xlog.RelFileLocator{SpcOid: 1663, DBOid: 13580, RelNumber: 16384}

func imageBlock(id uint8, rel uint32, blk uint32, c xlog.Compression) xlogtest.BlockSpec {
	loc := testRel
	loc.RelNumber = rel
	return xlogtest.BlockSpec{
		ID:    id,
		Rel:   loc,
		Block: blk,
		Image: &xlogtest.ImageSpec{
			Page:        xlogtest.NewPage(blk, 24, 100),
			HoleOffset:  24,
			HoleLength:  100,
			Compression: c,
		},
	}
}

func fillerRecord(xid uint32) xlogtest.RecordSpec {
	return xlogtest.RecordSpec{
		XID:    xid,
		RmgrID: 10,
		Blocks: []xlogtest.BlockSpec{{ID: 0, Rel: testRel, Block: 99, Data: []byte("tuple data")}},
	}
}

type walStore struct {
	b    *xlogtest.Builder
	dir  string
	desc wal.SegmentDescriptor
}

func newStore(t *testing.T, segSize uint32, build func(b *xlogtest.Builder)) *walStore {
	t.Helper()
	b, err := xlogtest.NewBuilder(xlog.MagicPG16, 1, segSize, 1)
	require.NoError(t, err)
	build(b)
	s := &walStore{b: b, dir: t.TempDir()}
	s.write(t)
	desc, err := wal.DescribeSegment(b.SegmentPath(s.dir, b.Segments()[0]))
	require.NoError(t, err)
	s.desc = desc
	return s
}

func (s *walStore) write(t *testing.T) {
	t.Helper()
	require.NoError(t, s.b.WriteDir(s.dir))
}

func mustAppend(t *testing.T, b *xlogtest.Builder, spec xlogtest.RecordSpec) (wal.LSN, wal.LSN) {
	t.Helper()
	start, end, err := b.Append(spec)
	require.NoError(t, err)
	return start, end
}

type runOpts struct {
	config  ExtractorConfig
	dest    string
	logger  ports.Logger
	recOpts []page.Option
	opts    []ExtractorOption
}

func (s *walStore) run(t *testing.T, ctx context.Context, o runOpts) (domain.Report, error) {
	t.Helper()
	r := wal.NewSegmentReader(s.desc.Dir, s.desc.TimeLine, s.desc.SegmentSize, nil)
	t.Cleanup(func() { r.Close() })
	cur, err := xlog.NewCursor(r, s.desc, xlog.WithEnd(o.config.End))
	require.NoError(t, err)

	cfg := o.config
	cfg.SegmentStart = s.desc.Start()
	cfg.SegmentSize = s.desc.SegmentSize
	if o.dest == "" {
		o.dest = t.TempDir()
	}
	if o.logger == nil {
		o.logger = mockLogger{}
	}
	e := NewExtractor(cfg, cur, page.NewReconstructor(o.recOpts...), fs.NewPageFileSink(o.dest), o.logger, o.opts...)
	return e.Run(ctx)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestExtractorEndToEnd(t *testing.T) {
	var imgStart, imgEnd wal.LSN
	store := newStore(t, wal.DefaultSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(700))
		mustAppend(t, b, xlogtest.RecordSpec{RmgrID: xlog.RmgrXLogID, Info: xlog.XLogSwitch})
		b.SkipToNextSegment()
		imgStart, imgEnd = mustAppend(t, b, xlogtest.RecordSpec{
			XID:    701,
			RmgrID: 10,
			Blocks: []xlogtest.BlockSpec{imageBlock(0, testRel.RelNumber, 5, xlog.CompressionPGLZ)},
		})
	})
	require.Len(t, store.b.Segments(), 2)

	dest := filepath.Join(t.TempDir(), "out")
	report, err := store.run(t, context.Background(), runOpts{dest: dest})
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDone, report.Phase)
	assert.Equal(t, 3, report.RecordsRead)
	assert.Equal(t, 1, report.ImagesDumped)
	assert.Equal(t, 0, report.ImagesFailed)
	assert.Equal(t, int64(page.Size), report.BytesWritten)
	assert.Equal(t, imgStart, report.LastLSN)

	key := domain.PageKey{Locator: testRel, Fork: xlog.MainFork, Block: 5, LSN: imgStart}
	assert.Equal(t, []string{key.FileName()}, listDir(t, dest))

	got, err := os.ReadFile(filepath.Join(dest, key.FileName()))
	require.NoError(t, err)
	require.Len(t, got, page.Size)
	assert.Equal(t, make([]byte, 100), got[24:124])
	assert.Equal(t, imgEnd.Align(), page.LSN(got))

	want := xlogtest.NewPage(5, 24, 100)
	assert.Equal(t, want[124:], got[124:])
	assert.Equal(t, want[8:24], got[8:24])
}

func multiRelStore(t *testing.T) *walStore {
	return newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(1))
		mustAppend(t, b, xlogtest.RecordSpec{XID: 10, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 1, xlog.CompressionPGLZ),
			imageBlock(1, 200, 2, xlog.CompressionLZ4),
		}})
		mustAppend(t, b, xlogtest.RecordSpec{XID: 11, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 200, 3, xlog.CompressionNone),
		}})
		mustAppend(t, b, xlogtest.RecordSpec{XID: 10, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 300, 4, xlog.CompressionPGLZ),
			{ID: 1, SameRel: true, Block: 5, Data: []byte("no image")},
		}})
	})
}

func TestExtractorFiltersAreSubsets(t *testing.T) {
	store := multiRelStore(t)
	ctx := context.Background()

	all, err := store.run(t, ctx, runOpts{})
	require.NoError(t, err)
	require.Equal(t, 4, all.ImagesDumped)

	xid := uint32(10)
	tests := []struct {
		name       string
		filter     Filter
		wantImages int
		check      func(t *testing.T, file string)
	}{
		{
			name:       "relation",
			filter:     NewFilter(nil, []uint32{200}),
			wantImages: 2,
			check:      func(t *testing.T, f string) { assert.Contains(t, f, "_rel_200_") },
		},
		{
			name:       "several relations",
			filter:     NewFilter(nil, []uint32{100, 300, 999}),
			wantImages: 2,
		},
		{
			name:       "transaction",
			filter:     NewFilter(&xid, nil),
			wantImages: 3,
		},
		{
			name:       "transaction and relation",
			filter:     NewFilter(&xid, []uint32{200}),
			wantImages: 1,
			check:      func(t *testing.T, f string) { assert.Contains(t, f, "_rel_200_blk_2_") },
		},
		{
			name:       "nothing matches",
			filter:     NewFilter(nil, []uint32{1}),
			wantImages: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			got, err := store.run(t, ctx, runOpts{config: ExtractorConfig{Filter: tt.filter}, dest: dest})
			require.NoError(t, err)
			assert.Equal(t, tt.wantImages, got.ImagesDumped)
			assert.Equal(t, all.RecordsRead, got.RecordsRead)

			for _, f := range got.Files {
				assert.Contains(t, all.Files, strings.Replace(f, dest, filepath.Dir(all.Files[0]), 1))
				if tt.check != nil {
					tt.check(t, f)
				}
			}
			assert.Len(t, listDir(t, dest), tt.wantImages)
		})
	}
}

func TestExtractorTransactionFilterCounts(t *testing.T) {
	store := multiRelStore(t)
	xid := uint32(11)

	report, err := store.run(t, context.Background(), runOpts{config: ExtractorConfig{Filter: NewFilter(&xid, nil)}})
	require.NoError(t, err)
	assert.Equal(t, 4, report.RecordsRead)
	assert.Equal(t, 3, report.RecordsRejected)
	assert.Equal(t, 1, report.BlocksSeen)
	assert.Equal(t, 1, report.ImagesDumped)
}

func TestExtractorDryRunMatchesNormalRun(t *testing.T) {
	store := multiRelStore(t)
	ctx := context.Background()

	capture := func(into map[string][]byte) ExtractorOption {
		return WithPageHook(func(key domain.PageKey, p []byte) {
			into[key.FileName()] = append([]byte(nil), p...)
		})
	}

	normal := map[string][]byte{}
	normalDest := t.TempDir()
	normalReport, err := store.run(t, ctx, runOpts{dest: normalDest, opts: []ExtractorOption{capture(normal)}})
	require.NoError(t, err)

	dry := map[string][]byte{}
	dryDest := filepath.Join(t.TempDir(), "never-created")
	dryReport, err := store.run(t, ctx, runOpts{
		config: ExtractorConfig{DryRun: true},
		dest:   dryDest,
		opts:   []ExtractorOption{capture(dry)},
	})
	require.NoError(t, err)

	require.Len(t, normal, 4)
	assert.Equal(t, normal, dry)
	assert.Equal(t, normalReport.ImagesDumped, dryReport.ImagesDumped)
	assert.Equal(t, int64(0), dryReport.BytesWritten)
	assert.Equal(t, int64(4*page.Size), normalReport.BytesWritten)

	_, err = os.Stat(dryDest)
	assert.True(t, os.IsNotExist(err), "dry run must not touch the destination")

	for name, want := range normal {
		got, err := os.ReadFile(filepath.Join(normalDest, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestExtractorStartPositions(t *testing.T) {
	var first, second, third wal.LSN
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		first, _ = mustAppend(t, b, fillerRecord(1))
		second, _ = mustAppend(t, b, xlogtest.RecordSpec{XID: 2, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 1, xlog.CompressionNone),
		}})
		third, _ = mustAppend(t, b, fillerRecord(3))
	})
	ctx := context.Background()

	t.Run("implicit start reads from the segment start", func(t *testing.T) {
		rec := logadapter.NewRecorder()
		report, err := store.run(t, ctx, runOpts{logger: rec})
		require.NoError(t, err)
		assert.Equal(t, first, report.FirstLSN)
		assert.Equal(t, 3, report.RecordsRead)
		assert.Zero(t, report.SkippedBytes)
		assert.Empty(t, rec.Find("first record is after"))
	})

	t.Run("explicit start at segment start", func(t *testing.T) {
		rec := logadapter.NewRecorder()
		report, err := store.run(t, ctx, runOpts{config: ExtractorConfig{Start: store.desc.Start()}, logger: rec})
		require.NoError(t, err)
		assert.Equal(t, first, report.FirstLSN)
		assert.Empty(t, rec.Find("first record is after"))
	})

	t.Run("explicit start inside a record", func(t *testing.T) {
		rec := logadapter.NewRecorder()
		start := second + 50
		report, err := store.run(t, ctx, runOpts{config: ExtractorConfig{Start: start}, logger: rec})
		require.NoError(t, err)
		assert.Equal(t, third, report.FirstLSN)
		assert.Equal(t, 1, report.RecordsRead)
		assert.Equal(t, uint64(third-start), report.SkippedBytes)
		assert.Zero(t, report.ImagesDumped)

		entries := rec.Find("first record is after")
		require.Len(t, entries, 1)
		skipped, ok := entries[0].Field("skipped")
		require.True(t, ok)
		assert.Equal(t, uint64(third-start), skipped)
	})

	t.Run("explicit start on a record", func(t *testing.T) {
		rec := logadapter.NewRecorder()
		report, err := store.run(t, ctx, runOpts{config: ExtractorConfig{Start: second}, logger: rec})
		require.NoError(t, err)
		assert.Equal(t, second, report.FirstLSN)
		assert.Equal(t, 1, report.ImagesDumped)
		assert.Empty(t, rec.Find("first record is after"))
	})
}

func TestExtractorEndBound(t *testing.T) {
	var second, third wal.LSN
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(1))
		second, _ = mustAppend(t, b, xlogtest.RecordSpec{XID: 2, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 1, xlog.CompressionNone),
		}})
		third, _ = mustAppend(t, b, fillerRecord(3))
	})
	ctx := context.Background()

	t.Run("end on a record boundary", func(t *testing.T) {
		report, err := store.run(t, ctx, runOpts{config: ExtractorConfig{End: third}})
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseDone, report.Phase)
		assert.Equal(t, 2, report.RecordsRead)
		assert.Equal(t, 1, report.ImagesDumped)
	})

	t.Run("end inside a record", func(t *testing.T) {
		report, err := store.run(t, ctx, runOpts{config: ExtractorConfig{End: second + 100}})
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseEndpointReached, report.Phase)
		assert.Equal(t, 1, report.RecordsRead)
		assert.Zero(t, report.ImagesDumped)
	})
}

func TestExtractorTailPolicy(t *testing.T) {
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(1))
	})
	ctx := context.Background()

	report, err := store.run(t, ctx, runOpts{config: ExtractorConfig{TailPolicy: TailStop}})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDone, report.Phase)
	assert.Equal(t, 1, report.RecordsRead)

	report, err = store.run(t, ctx, runOpts{config: ExtractorConfig{TailPolicy: TailFail}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, xlog.ErrMalformedRecord))
	assert.Equal(t, 1, report.RecordsRead)
}

// straddlingStore builds a WAL whose last record starts in segment 1 and
// ends in segment 2. It returns the start of that record.
func straddlingStore(t *testing.T) (*walStore, wal.LSN) {
	t.Helper()
	var last wal.LSN
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, xlogtest.RecordSpec{XID: 1, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 1, xlog.CompressionNone),
		}})
		for len(b.Segments()) < 2 {
			spec := fillerRecord(2)
			spec.MainData = bytes.Repeat([]byte{0x5A}, 90_000)
			last, _ = mustAppend(t, b, spec)
		}
	})
	require.Equal(t, []wal.SegNo{1, 2}, store.b.Segments())
	require.Equal(t, wal.SegNo(1), wal.SegmentOf(last, wal.MinSegmentSize))
	return store, last
}

func TestExtractorSegmentGapIsFatal(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, path string)
		want   error
	}{
		{
			name:   "missing segment",
			damage: func(t *testing.T, path string) { require.NoError(t, os.Remove(path)) },
			want:   wal.ErrSegmentNotFound,
		},
		{
			name:   "truncated segment",
			damage: func(t *testing.T, path string) { require.NoError(t, os.Truncate(path, 0)) },
			want:   wal.ErrShortRead,
		},
	}
	for _, tt := range tests {
		for _, policy := range []TailPolicy{TailStop, TailFail} {
			t.Run(fmt.Sprintf("%s policy %d", tt.name, policy), func(t *testing.T) {
				store, last := straddlingStore(t)
				tt.damage(t, store.b.SegmentPath(store.dir, 2))

				report, err := store.run(t, context.Background(), runOpts{config: ExtractorConfig{TailPolicy: policy}})
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)
				assert.False(t, errors.Is(err, xlog.ErrMalformedRecord))
				assert.False(t, report.Phase.Terminal(), "phase %s", report.Phase)
				assert.Equal(t, 1, report.ImagesDumped)
				assert.Less(t, report.LastLSN, last)
			})
		}
	}
}

func TestExtractorNoValidRecord(t *testing.T) {
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(1))
	})

	_, err := store.run(t, context.Background(), runOpts{config: ExtractorConfig{Start: store.desc.Start() + 2*wal.PageSize}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoValidRecord))
}

func TestExtractorSkipsBrokenImage(t *testing.T) {
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		prev, _ := mustAppend(t, b, fillerRecord(1))
		raw, err := xlogtest.EncodeRecord(b.Format(), xlogtest.RecordSpec{XID: 2, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 1, xlog.CompressionLZ4),
			imageBlock(1, 100, 2, xlog.CompressionPGLZ),
		}}, prev)
		require.NoError(t, err)

		rec, err := xlog.Decode(raw, 0, b.Format())
		require.NoError(t, err)
		len0 := len(rec.Blocks[0].ImageMetadata().Bytes)
		len1 := len(rec.Blocks[1].ImageMetadata().Bytes)
		off := len(raw) - len1 - len0
		copy(raw[off:off+len0], bytes.Repeat([]byte{0xFF}, len0))

		h := xlog.ParseHeader(raw)
		h.CRC = xlog.RecordCRC(raw)
		h.Encode(raw)
		b.AppendRaw(raw)
	})

	rec := logadapter.NewRecorder()
	dest := t.TempDir()
	report, err := store.run(t, context.Background(), runOpts{dest: dest, logger: rec})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImagesFailed)
	assert.Equal(t, 1, report.ImagesDumped)
	assert.Len(t, rec.Find("failed to restore block image"), 1)

	files := listDir(t, dest)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "_blk_2_")
}

func TestExtractorChecksum(t *testing.T) {
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, xlogtest.RecordSpec{XID: 2, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 77, xlog.CompressionZstd),
		}})
	})

	z, err := page.NewZstdDecompressor()
	require.NoError(t, err)
	defer z.Close()

	dest := t.TempDir()
	report, err := store.run(t, context.Background(), runOpts{
		dest: dest,
		recOpts: []page.Option{
			page.WithChecksum(checksum.Page),
			page.WithDecompressor(xlog.CompressionZstd, z),
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)

	got, err := os.ReadFile(report.Files[0])
	require.NoError(t, err)
	assert.Equal(t, checksum.Page(got, 77), page.Checksum(got))
	assert.NotZero(t, page.Checksum(got))
}

// growingWaiter appends a record to the store on its first call and cancels
// the run on the second.
type growingWaiter struct {
	t      *testing.T
	store  *walStore
	cancel context.CancelFunc
	calls  int
}

func (w *growingWaiter) Wait(ctx context.Context) error {
	w.calls++
	if w.calls == 1 {
		mustAppend(w.t, w.store.b, xlogtest.RecordSpec{XID: 9, RmgrID: 10, Blocks: []xlogtest.BlockSpec{
			imageBlock(0, 100, 9, xlog.CompressionPGLZ),
		}})
		w.store.write(w.t)
		return nil
	}
	w.cancel()
	return ctx.Err()
}

func TestExtractorFollow(t *testing.T) {
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(1))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waiter := &growingWaiter{t: t, store: store, cancel: cancel}

	report, err := store.run(t, ctx, runOpts{
		config: ExtractorConfig{Follow: true},
		opts:   []ExtractorOption{WithWaiter(waiter)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, waiter.calls)
	assert.Equal(t, 2, report.RecordsRead)
	assert.Equal(t, 1, report.ImagesDumped)
}

func TestExtractorFollowNeedsWaiter(t *testing.T) {
	store := newStore(t, wal.MinSegmentSize, func(b *xlogtest.Builder) {
		mustAppend(t, b, fillerRecord(1))
	})
	_, err := store.run(t, context.Background(), runOpts{config: ExtractorConfig{Follow: true}})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
