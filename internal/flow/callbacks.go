// Package flow provides the fulfillment callback registry for StepUp
// scenarios.
package flow

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/quillbooks/stepup/internal/models"
)

// FulfillFunc receives the final classified outcome of a scenario run.
type FulfillFunc func(result models.ClassifiedResponse)

// CallbackRegistry maps scenario names to their fulfillment callbacks. It is
// injected into the scenario runner; callbacks are single-shot and removed on
// fulfillment so an outcome can never be delivered into a later run.
type CallbackRegistry struct {
	mu        sync.RWMutex
	callbacks map[models.Scenario]FulfillFunc
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{
		callbacks: make(map[models.Scenario]FulfillFunc),
	}
}

// Register installs the fulfillment callback for a scenario, replacing any
// previous one.
func (r *CallbackRegistry) Register(scenario models.Scenario, fn FulfillFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[scenario] = fn
	slog.Debug("CallbackRegistry registered callback", "scenario", scenario)
}

// Clear removes the callback for a scenario without invoking it.
func (r *CallbackRegistry) Clear(scenario models.Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, scenario)
	slog.Debug("CallbackRegistry cleared callback", "scenario", scenario)
}

// Fulfill invokes and removes the scenario's callback. Fulfilling a scenario
// with no registered callback is an error so integration mistakes surface
// instead of outcomes vanishing.
func (r *CallbackRegistry) Fulfill(scenario models.Scenario, result models.ClassifiedResponse) error {
	r.mu.Lock()
	fn, exists := r.callbacks[scenario]
	if exists {
		delete(r.callbacks, scenario)
	}
	r.mu.Unlock()

	if !exists {
		slog.Error("CallbackRegistry no callback registered", "scenario", scenario)
		return fmt.Errorf("no fulfillment callback registered for scenario %s", scenario)
	}

	fn(result)
	slog.Debug("CallbackRegistry fulfilled", "scenario", scenario, "reason", result.Reason)
	return nil
}
