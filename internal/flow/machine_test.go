package flow

import (
	"reflect"
	"testing"

	"github.com/quillbooks/stepup/internal/models"
)

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine(models.ScenarioRegistration)
	state := m.State()
	if state.Scenario != models.ScenarioRegistration {
		t.Errorf("expected registration scenario, got %s", state.Scenario)
	}
	if state.SoftPromptApproved || state.IsFlowComplete {
		t.Errorf("flags must start false: %+v", state)
	}
	if state.ValidateCode != "" || state.Error != "" {
		t.Errorf("code and error must start empty: %+v", state)
	}
}

func TestMachine_Actions(t *testing.T) {
	m := NewMachine(models.ScenarioAuthentication)

	m.Dispatch(models.Action{Type: models.ActionSetValidateCode, Code: "654321"})
	if got := m.State().ValidateCode; got != "654321" {
		t.Errorf("validate code not set, got %q", got)
	}

	m.Dispatch(models.Action{Type: models.ActionSetSoftPromptApproved, Flag: true})
	if !m.State().SoftPromptApproved {
		t.Errorf("soft prompt approval not set")
	}

	m.Dispatch(models.Action{Type: models.ActionSetFlowComplete, Flag: true})
	if !m.State().IsFlowComplete {
		t.Errorf("flow completion not set")
	}

	m.Dispatch(models.Action{Type: models.ActionSetError, Reason: models.ReasonBackendTooManyAttempts})
	if got := m.State().Error; got != models.ReasonBackendTooManyAttempts {
		t.Errorf("error not set, got %s", got)
	}

	// Each action touches only its own field.
	state := m.State()
	if state.ValidateCode != "654321" || !state.SoftPromptApproved || !state.IsFlowComplete {
		t.Errorf("unrelated fields changed: %+v", state)
	}
}

func TestMachine_ResetRestoresExactDefault(t *testing.T) {
	m := NewMachine(models.ScenarioTransactionReview)
	m.Dispatch(models.Action{Type: models.ActionSetValidateCode, Code: "111111"})
	m.Dispatch(models.Action{Type: models.ActionSetSoftPromptApproved, Flag: true})
	m.Dispatch(models.Action{Type: models.ActionSetFlowComplete, Flag: true})
	m.Dispatch(models.Action{Type: models.ActionSetError, Reason: models.ReasonGenericUnknownResponse})

	m.Dispatch(models.Action{Type: models.ActionReset})
	if !reflect.DeepEqual(m.State(), DefaultState()) {
		t.Errorf("reset did not restore the default state: %+v", m.State())
	}

	// A second reset is a no-op.
	m.Dispatch(models.Action{Type: models.ActionReset})
	if !reflect.DeepEqual(m.State(), DefaultState()) {
		t.Errorf("second reset changed state: %+v", m.State())
	}
}

func TestMachine_ResetClearsScenario(t *testing.T) {
	m := NewMachine(models.ScenarioRevocation)
	m.Dispatch(models.Action{Type: models.ActionReset})
	if got := m.State().Scenario; got != "" {
		t.Errorf("reset must clear the scenario, got %s", got)
	}
}

func TestMachine_UseAfterClosePanics(t *testing.T) {
	m := NewMachine(models.ScenarioRegistration)
	m.Close()

	assertPanics(t, "State after Close", func() { m.State() })
	assertPanics(t, "Dispatch after Close", func() {
		m.Dispatch(models.Action{Type: models.ActionReset})
	})
}

func TestMachine_UnknownActionPanics(t *testing.T) {
	m := NewMachine(models.ScenarioRegistration)
	assertPanics(t, "unknown action", func() {
		m.Dispatch(models.Action{Type: "NOT_AN_ACTION"})
	})
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}
