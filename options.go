package walfp

import (
	"github.com/bft-labs/walfp/internal/app"
	"github.com/bft-labs/walfp/pkg/log"
)

// Logger is the interface for structured logging.
type Logger = log.Logger

// PhaseObserver is notified when a run moves between phases.
type PhaseObserver = app.PhaseObserver

// PageHook observes every reconstructed page, in dry runs too. page is only
// valid during the call.
type PageHook func(key PageKey, page []byte)

// Option configures optional behavior of Run.
type Option func(*options)

type options struct {
	logger   Logger
	hook     PageHook
	observer PhaseObserver
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPageHook registers a hook called with every reconstructed page.
func WithPageHook(hook PageHook) Option {
	return func(o *options) {
		o.hook = hook
	}
}

// WithPhaseObserver registers an observer of phase changes.
// It is called synchronously from the extraction loop.
func WithPhaseObserver(observer PhaseObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}
