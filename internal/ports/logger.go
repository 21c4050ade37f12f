package ports

import "github.com/bft-labs/walfp/pkg/log"

// Logger is the structured logger used by the application layer.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Uint32   = log.Uint32
	Uint64   = log.Uint64
	Bool     = log.Bool
	Duration = log.Duration
	Stringer = log.Stringer
	Err      = log.Err
)
