// Package models defines the data shared by the evidence store, the
// hypothesis tracker, the recommendation engine and the dialogue layer.
package models

import "sort"

// DiagnosticStep is a single pre-authored observation. Steps come from the
// catalog and are never created or modified at runtime.
type DiagnosticStep struct {
	// ID is unique across the catalog.
	ID string `json:"id" yaml:"id"`

	// IncidentID identifies the authored incident this step belongs to.
	IncidentID string `json:"incident_id" yaml:"incident_id"`

	// StepIndex is the ordinal of the step within its incident.
	StepIndex int `json:"step_index" yaml:"step_index"`

	// ObservedFact is the human-readable fact this step observes,
	// e.g. "active connections reach max_connections".
	ObservedFact string `json:"observed_fact" yaml:"observed_fact"`

	// Method describes how to make the observation (query, command, dashboard).
	Method string `json:"method" yaml:"method"`

	// Analysis explains what the result means.
	Analysis string `json:"analysis" yaml:"analysis"`

	// RootCause is the fault class this step is evidence for.
	RootCause string `json:"root_cause" yaml:"root_cause"`
}

// ScoredStep pairs a step with its retrieval score.
type ScoredStep struct {
	Step  DiagnosticStep `json:"step"`
	Score float64        `json:"score"`
}

// StepLess orders steps by step index, then by id.
func StepLess(a, b DiagnosticStep) bool {
	if a.StepIndex != b.StepIndex {
		return a.StepIndex < b.StepIndex
	}
	return a.ID < b.ID
}

// SortSteps sorts steps in place by StepLess.
func SortSteps(steps []DiagnosticStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return StepLess(steps[i], steps[j])
	})
}
