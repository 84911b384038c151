// Package models defines flow state structures for StepUp scenarios.
package models

// Scenario names a multifactor authentication flow the UI can run.
type Scenario string

const (
	// ScenarioRegistration enrolls a new device key.
	ScenarioRegistration Scenario = "registration"
	// ScenarioAuthentication performs a plain step-up authentication.
	ScenarioAuthentication Scenario = "authentication"
	// ScenarioTransactionReview approves or denies a pending card transaction.
	ScenarioTransactionReview Scenario = "transactionReview"
	// ScenarioRevocation removes the account's registered keys.
	ScenarioRevocation Scenario = "revocation"
)

// FlowState holds the mutable state of a single scenario run. It is owned by
// exactly one flow machine instance and is never persisted.
type FlowState struct {
	Scenario           Scenario
	ValidateCode       string
	Error              Reason
	SoftPromptApproved bool
	IsFlowComplete     bool
}

// ActionType enumerates the closed set of flow state mutations.
type ActionType string

const (
	ActionSetValidateCode       ActionType = "SET_VALIDATE_CODE"
	ActionSetSoftPromptApproved ActionType = "SET_SOFT_PROMPT_APPROVED"
	ActionSetFlowComplete       ActionType = "SET_FLOW_COMPLETE"
	ActionSetError              ActionType = "SET_ERROR"
	ActionReset                 ActionType = "RESET"
)

// Action is a single flow state mutation request.
type Action struct {
	Type ActionType
	// Code carries the validate code for SET_VALIDATE_CODE.
	Code string
	// Flag carries the boolean for SET_SOFT_PROMPT_APPROVED and SET_FLOW_COMPLETE.
	Flag bool
	// Reason carries the classified outcome for SET_ERROR.
	Reason Reason
}
