// Package flow implements the multifactor authentication flow layer: the
// scenario state machine, the fulfillment callback registry, the review
// idempotency guard, and the scenario runner tying them to the transport.
package flow

import (
	"log/slog"
	"sync"

	"github.com/quillbooks/stepup/internal/models"
)

// DefaultState returns the fixed state every machine starts from and RESET
// restores: no scenario, no validate code, no error, both flags false.
func DefaultState() models.FlowState {
	return models.FlowState{}
}

// Machine holds the state of one scenario run and applies the closed set of
// flow actions. A machine is owned by exactly one scenario driver; using it
// after Close panics, since silently serving stale flow state could leak one
// scenario's progress into the next.
type Machine struct {
	mu     sync.Mutex
	state  models.FlowState
	closed bool
}

// NewMachine creates a machine in the default state running the given
// scenario.
func NewMachine(scenario models.Scenario) *Machine {
	state := DefaultState()
	state.Scenario = scenario
	slog.Debug("flow.NewMachine", "scenario", scenario)
	return &Machine{state: state}
}

// State returns a copy of the current flow state.
func (m *Machine) State() models.FlowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureActive()
	return m.state
}

// Dispatch applies one action to the flow state. Unknown action types panic;
// the action set is closed.
func (m *Machine) Dispatch(action models.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureActive()

	switch action.Type {
	case models.ActionSetValidateCode:
		m.state.ValidateCode = action.Code
	case models.ActionSetSoftPromptApproved:
		m.state.SoftPromptApproved = action.Flag
	case models.ActionSetFlowComplete:
		m.state.IsFlowComplete = action.Flag
	case models.ActionSetError:
		m.state.Error = action.Reason
	case models.ActionReset:
		m.state = DefaultState()
	default:
		panic("flow: unknown action type " + string(action.Type))
	}
	slog.Debug("flow.Machine dispatched", "action", action.Type, "scenario", m.state.Scenario)
}

// Close retires the machine. Further State or Dispatch calls panic.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.state = models.FlowState{}
	slog.Debug("flow.Machine closed")
}

// ensureActive must be called with mu held.
func (m *Machine) ensureActive() {
	if m.closed {
		panic("flow: machine used after Close")
	}
}
