package cliconfig

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/bft-labs/walfp/pkg/log"
)

// NewLogger builds the CLI logger writing to out. The auto format is the
// console writer on a terminal and JSON lines otherwise.
func NewLogger(out *os.File, format, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), invalid("unknown log level %q", level)
	}

	var logger zerolog.Logger
	switch format {
	case LogFormatJSON:
		logger = log.NewJSONLogger(out)
	case LogFormatConsole:
		logger = log.NewConsoleLogger(out)
	case LogFormatAuto, "":
		if term.IsTerminal(int(out.Fd())) {
			logger = log.NewConsoleLogger(out)
		} else {
			logger = log.NewJSONLogger(out)
		}
	default:
		return zerolog.Nop(), invalid("unknown log format %q", format)
	}
	return logger.Level(lvl), nil
}
