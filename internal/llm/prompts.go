package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const extractFactsSystemPrompt = `You help an on-call engineer diagnose a live database incident.
Extract the concrete observations the engineer reports in their latest message.
Rules:
- Each fact is one short declarative statement, e.g. "active connections reach max_connections".
- Only include what the engineer states as observed or true. Skip questions, plans and guesses.
- Do not repeat facts that are already confirmed.
Respond with JSON only: {"facts": ["..."]}`

const classifyFeedbackSystemPrompt = `You help an on-call engineer diagnose a live database incident.
The engineer was asked to perform a diagnostic check. Decide whether their latest message
reports that the check was actually performed (regardless of what it found).
Respond with JSON only: {"executed": true} or {"executed": false}`

func renderContext(text string, tc TurnContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem statement: %s\n", tc.ProblemStatement)
	if len(tc.ConfirmedFacts) > 0 {
		b.WriteString("Already confirmed facts:\n")
		for _, f := range tc.ConfirmedFacts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if tc.PendingObservation != "" {
		fmt.Fprintf(&b, "Requested check: %s", tc.PendingObservation)
		if tc.PendingMethod != "" {
			fmt.Fprintf(&b, " (method: %s)", tc.PendingMethod)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nEngineer's message:\n%s\n", text)
	return b.String()
}

type factsResponse struct {
	Facts []string `json:"facts"`
}

type feedbackResponse struct {
	Executed *bool `json:"executed"`
}

// extractJSON returns the first JSON object in s, tolerating code fences
// and surrounding prose.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model response")
	}
	return s[start : end+1], nil
}

func parseFacts(raw string) ([]string, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var resp factsResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode facts: %w", err)
	}
	facts := make([]string, 0, len(resp.Facts))
	for _, f := range resp.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

func parseFeedback(raw string) (bool, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return false, err
	}
	var resp feedbackResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return false, fmt.Errorf("failed to decode feedback: %w", err)
	}
	if resp.Executed == nil {
		return false, fmt.Errorf("model response has no \"executed\" field")
	}
	return *resp.Executed, nil
}
