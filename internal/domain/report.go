package domain

import "github.com/bft-labs/walfp/pkg/wal"

// Phase is the state of the record dispatch state machine.
type Phase int

const (
	// PhaseScanning waits for the next record.
	PhaseScanning Phase = iota

	// PhaseExtracting reconstructs the accepted images of one record.
	PhaseExtracting

	// PhaseDone means the stream ended: no further record, the end bound,
	// or an unreadable tail.
	PhaseDone

	// PhaseEndpointReached means the end bound cut a record in two.
	PhaseEndpointReached
)

var phaseNames = map[Phase]string{
	PhaseScanning:        "scanning",
	PhaseExtracting:      "extracting",
	PhaseDone:            "done",
	PhaseEndpointReached: "endpoint_reached",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseEndpointReached
}

// Report summarizes one extraction run.
type Report struct {
	// RecordsRead counts every decoded record.
	RecordsRead int

	// RecordsRejected counts records dropped by the transaction id filter.
	RecordsRejected int

	// BlocksSeen counts block references of accepted records.
	BlocksSeen int

	// BlocksFiltered counts block references dropped by the relation filter.
	BlocksFiltered int

	// ImagesDumped counts reconstructed images (written, or only planned in a dry run).
	ImagesDumped int

	// ImagesFailed counts images that could not be reconstructed or written.
	ImagesFailed int

	// BytesWritten is the number of page bytes written to disk.
	BytesWritten int64

	// FirstLSN and LastLSN are the starts of the first and last records read.
	FirstLSN wal.LSN
	LastLSN  wal.LSN

	// SkippedBytes is the distance from the requested start to the first record.
	SkippedBytes uint64

	// Phase is the final state of the run.
	Phase Phase

	// Files lists the written (or, in a dry run, planned) output paths.
	Files []string
}

// AddRecord accounts for one decoded record starting at lsn.
func (r *Report) AddRecord(lsn wal.LSN) {
	if r.RecordsRead == 0 {
		r.FirstLSN = lsn
	}
	r.RecordsRead++
	r.LastLSN = lsn
}

// AddImage accounts for one dumped image.
func (r *Report) AddImage(path string, written int) {
	r.ImagesDumped++
	r.BytesWritten += int64(written)
	r.Files = append(r.Files, path)
}
