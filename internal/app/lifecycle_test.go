package app

import (
	"testing"

	"github.com/bft-labs/walfp/internal/domain"
	"github.com/bft-labs/walfp/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// mockObserver tracks phase change events for testing.
type mockObserver struct {
	events []phaseChangeEvent
}

type phaseChangeEvent struct {
	previous domain.Phase
	current  domain.Phase
	reason   string
}

func (m *mockObserver) OnPhaseChange(previous, current domain.Phase, reason string) {
	m.events = append(m.events, phaseChangeEvent{previous, current, reason})
}

func TestNewLifecycle(t *testing.T) {
	l := NewLifecycle(mockLogger{}, nil)
	if l.Phase() != domain.PhaseScanning {
		t.Errorf("initial phase = %v, want scanning", l.Phase())
	}
}

func TestLifecycle_TransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []domain.Phase
	}{
		{"extract one record", []domain.Phase{domain.PhaseExtracting, domain.PhaseScanning}},
		{"end of stream", []domain.Phase{domain.PhaseDone}},
		{"end bound mid-record", []domain.Phase{domain.PhaseEndpointReached}},
		{"extract then done", []domain.Phase{domain.PhaseExtracting, domain.PhaseScanning, domain.PhaseDone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &mockObserver{}
			l := NewLifecycle(mockLogger{}, obs)
			for _, p := range tt.path {
				if err := l.TransitionTo(p, "test"); err != nil {
					t.Fatalf("TransitionTo(%v) error = %v", p, err)
				}
			}
			if got := l.Phase(); got != tt.path[len(tt.path)-1] {
				t.Errorf("Phase() = %v, want %v", got, tt.path[len(tt.path)-1])
			}
			if len(obs.events) != len(tt.path) {
				t.Errorf("observer saw %d events, want %d", len(obs.events), len(tt.path))
			}
		})
	}
}

func TestLifecycle_TransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []domain.Phase
	}{
		{"scanning to scanning", []domain.Phase{domain.PhaseScanning}},
		{"extracting to done", []domain.Phase{domain.PhaseExtracting, domain.PhaseDone}},
		{"extracting to extracting", []domain.Phase{domain.PhaseExtracting, domain.PhaseExtracting}},
		{"done is terminal", []domain.Phase{domain.PhaseDone, domain.PhaseScanning}},
		{"endpoint reached is terminal", []domain.Phase{domain.PhaseEndpointReached, domain.PhaseDone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(mockLogger{}, nil)
			var err error
			for _, p := range tt.path {
				if err = l.TransitionTo(p, "test"); err != nil {
					break
				}
			}
			if err == nil {
				t.Errorf("path %v: expected an error", tt.path)
			}
		})
	}
}

func TestLifecycle_ObserverReason(t *testing.T) {
	obs := &mockObserver{}
	l := NewLifecycle(mockLogger{}, obs)
	if err := l.TransitionTo(domain.PhaseDone, "end of WAL"); err != nil {
		t.Fatal(err)
	}
	want := phaseChangeEvent{domain.PhaseScanning, domain.PhaseDone, "end of WAL"}
	if obs.events[0] != want {
		t.Errorf("event = %+v, want %+v", obs.events[0], want)
	}
}
