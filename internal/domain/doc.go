// Package domain contains the value objects shared by the extractor and its
// adapters.
//
// It has no dependencies on infrastructure concerns (file system, logging)
// and holds only plain data and the rules that belong to it.
//
// # Types
//
//   - [PageKey]: identifies one extracted page image and names its output file
//   - [Report]: counters and positions accumulated over one run
//   - [Phase]: the state of the record dispatch state machine
package domain
