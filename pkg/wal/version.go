package wal

// Version information for the wal module.
const (
	// Version is the current version of the wal module.
	Version = "2.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "2.0.0"
)
