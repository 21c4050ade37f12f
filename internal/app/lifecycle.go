package app

import (
	"fmt"

	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/internal/ports"
)

// PhaseObserver is called when the dispatch phase changes.
type PhaseObserver interface {
	OnPhaseChange(previous, current domain.Phase, reason string)
}

// Lifecycle is the dispatch state machine of one run:
//
//	Scanning -> Extracting -> Scanning
//	Scanning -> Done | EndpointReached
//
// It is driven by a single goroutine and needs no locking.
type Lifecycle struct {
	phase    domain.Phase
	logger   ports.Logger
	observer PhaseObserver
}

// NewLifecycle creates a state machine in PhaseScanning.
func NewLifecycle(logger ports.Logger, observer PhaseObserver) *Lifecycle {
	return &Lifecycle{
		phase:    domain.PhaseScanning,
		logger:   logger,
		observer: observer,
	}
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() domain.Phase {
	return l.phase
}

// TransitionTo moves to next. It returns an error for a transition the
// state machine does not allow.
func (l *Lifecycle) TransitionTo(next domain.Phase, reason string) error {
	prev := l.phase

	valid := false
	switch prev {
	case domain.PhaseScanning:
		valid = next == domain.PhaseExtracting || next.Terminal()
	case domain.PhaseExtracting:
		valid = next == domain.PhaseScanning
	}
	if !valid {
		return fmt.Errorf("invalid phase transition %s -> %s", prev, next)
	}

	l.phase = next
	if l.observer != nil {
		l.observer.OnPhaseChange(prev, next, reason)
	}
	if next.Terminal() {
		l.logger.Info("extraction finished",
			ports.String("phase", next.String()),
			ports.String("reason", reason),
		)
	}
	return nil
}
