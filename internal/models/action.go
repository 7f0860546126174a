package models

import (
	"encoding/json"
	"fmt"
)

// ActionKind names the variant of an Action.
type ActionKind string

const (
	ActionAskInitialInfo   ActionKind = "ask_initial_info"
	ActionConfirmRootCause ActionKind = "confirm_root_cause"
	ActionRecommendStep    ActionKind = "recommend_step"
	ActionAskSymptom       ActionKind = "ask_symptom"
	ActionAskGeneral       ActionKind = "ask_general"
)

// Action is the single next move chosen by the recommendation engine.
// The set of implementations is closed: only the types in this file
// satisfy it.
type Action interface {
	Kind() ActionKind
	isAction()
}

// AskInitialInfo asks the operator to describe the problem in more detail.
// Emitted when there are no active hypotheses.
type AskInitialInfo struct{}

// ConfirmRootCause declares the top hypothesis confirmed.
type ConfirmRootCause struct {
	RootCause         string   `json:"root_cause"`
	Confidence        float64  `json:"confidence"`
	SupportingStepIDs []string `json:"supporting_step_ids"`
}

// StepReason explains why a step was chosen.
type StepReason string

const (
	ReasonDiscriminating StepReason = "discriminating"
	ReasonNextStep       StepReason = "next_step"
	ReasonWeightedVote   StepReason = "weighted_vote"
)

// RecommendStep asks the operator to carry out Step.
type RecommendStep struct {
	Step         DiagnosticStep   `json:"step"`
	RootCause    string           `json:"root_cause"`
	Reason       StepReason       `json:"reason"`
	Alternatives []DiagnosticStep `json:"alternatives,omitempty"`
}

// AskSymptom asks whether a specific fact holds.
type AskSymptom struct {
	MissingFact string `json:"missing_fact"`
	RootCause   string `json:"root_cause"`
}

// AskGeneral is the last-resort open question.
type AskGeneral struct{}

func (AskInitialInfo) Kind() ActionKind   { return ActionAskInitialInfo }
func (ConfirmRootCause) Kind() ActionKind { return ActionConfirmRootCause }
func (RecommendStep) Kind() ActionKind    { return ActionRecommendStep }
func (AskSymptom) Kind() ActionKind       { return ActionAskSymptom }
func (AskGeneral) Kind() ActionKind       { return ActionAskGeneral }

func (AskInitialInfo) isAction()   {}
func (ConfirmRootCause) isAction() {}
func (RecommendStep) isAction()    {}
func (AskSymptom) isAction()       {}
func (AskGeneral) isAction()       {}

// actionEnvelope is the wire form of an Action.
type actionEnvelope struct {
	Kind    ActionKind      `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalAction encodes an Action as {"kind": ..., "payload": ...}.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot marshal nil action")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", a.Kind(), err)
	}
	return json.Marshal(actionEnvelope{Kind: a.Kind(), Payload: payload})
}

// UnmarshalAction decodes the envelope produced by MarshalAction.
func UnmarshalAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode action envelope: %w", err)
	}

	var target Action
	switch env.Kind {
	case ActionAskInitialInfo:
		return AskInitialInfo{}, nil
	case ActionAskGeneral:
		return AskGeneral{}, nil
	case ActionConfirmRootCause:
		var a ConfirmRootCause
		if err := decodePayload(env.Payload, &a); err != nil {
			return nil, err
		}
		target = a
	case ActionRecommendStep:
		var a RecommendStep
		if err := decodePayload(env.Payload, &a); err != nil {
			return nil, err
		}
		target = a
	case ActionAskSymptom:
		var a AskSymptom
		if err := decodePayload(env.Payload, &a); err != nil {
			return nil, err
		}
		target = a
	default:
		return nil, NewValidationError("unknown action kind %q", env.Kind)
	}
	return target, nil
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return NewValidationError("action payload is missing")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode action payload: %w", err)
	}
	return nil
}
