package cliconfig

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/pkg/wal"
)

// Tail policies accepted by --on-malformed.
const (
	OnMalformedStop = "stop"
	OnMalformedFail = "fail"
)

// Log formats accepted by --log-format.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// NoXID disables the transaction filter.
const NoXID int64 = -1

// Config holds CLI configuration for walfp.
type Config struct {
	// WALPath is the segment file (or a directory holding segments) the run starts from.
	WALPath string

	StartText string
	EndText   string

	// Start and End are parsed from StartText and EndText by Validate.
	Start wal.LSN
	End   wal.LSN

	XID       int64
	Relations []uint

	Dest   string
	Check  bool
	DryRun bool

	Follow          bool
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	OnMalformed string

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		XID:             NoXID,
		PollInterval:    500 * time.Millisecond,
		MaxPollInterval: 10 * time.Second,
		OnMalformed:     OnMalformedStop,
		LogLevel:        "info",
		LogFormat:       LogFormatAuto,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.WALPath == "" {
		return invalid("WAL file path is required")
	}

	c.Start = wal.InvalidLSN
	if c.StartText != "" {
		l, err := wal.ParseLSN(c.StartText)
		if err != nil {
			return invalid("could not parse start WAL location %q", c.StartText)
		}
		c.Start = l
	}
	c.End = wal.InvalidLSN
	if c.EndText != "" {
		l, err := wal.ParseLSN(c.EndText)
		if err != nil {
			return invalid("could not parse end WAL location %q", c.EndText)
		}
		c.End = l
	}
	if c.Start.Valid() && c.End.Valid() && c.End <= c.Start {
		return invalid("end WAL location %s is not after start %s", c.End, c.Start)
	}

	if c.XID < NoXID || c.XID > math.MaxUint32 {
		return invalid("transaction id %d out of range", c.XID)
	}
	for _, r := range c.Relations {
		if r > math.MaxUint32 {
			return invalid("relation id %d out of range", r)
		}
	}

	if c.Dest == "" {
		c.Dest = os.TempDir()
	}

	switch c.OnMalformed {
	case "":
		c.OnMalformed = OnMalformedStop
	case OnMalformedStop, OnMalformedFail:
	default:
		return invalid("on-malformed must be %q or %q, got %q", OnMalformedStop, OnMalformedFail, c.OnMalformed)
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = LogFormatAuto
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return invalid("unknown log format %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return invalid("unknown log level %q", c.LogLevel)
	}

	if c.Follow {
		if c.PollInterval <= 0 {
			return invalid("poll interval must be positive")
		}
		if c.MaxPollInterval < c.PollInterval {
			c.MaxPollInterval = c.PollInterval
		}
	}

	return nil
}

// TransactionFilter returns the xid filter, or nil when none is set.
func (c *Config) TransactionFilter() *uint32 {
	if c.XID == NoXID {
		return nil
	}
	xid := uint32(c.XID)
	return &xid
}

// RelationFilter returns the relation ids as uint32.
func (c *Config) RelationFilter() []uint32 {
	if len(c.Relations) == 0 {
		return nil
	}
	rels := make([]uint32, len(c.Relations))
	for i, r := range c.Relations {
		rels[i] = uint32(r)
	}
	return rels
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value from a pointer if not nil and flag not changed.
func (s *configSetter) setInt64(flag string, value *int64, dst *int64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setUints sets a list if not empty and flag not changed.
func (s *configSetter) setUints(flag string, value []uint, dst *[]uint) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]uint(nil), value...)
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setUintsFromString parses a comma separated list such as "16384,16390".
func (s *configSetter) setUintsFromString(flag, value string, dst *[]uint) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	var out []uint
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return fmt.Errorf("parse %s: %w", flag, err)
		}
		out = append(out, uint(u))
	}
	*dst = out
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
