package dialogue

import (
	"fmt"
	"strings"

	"github.com/moolen/sleuth/internal/models"
)

// Format renders an action as the message shown to the operator.
func Format(action models.Action) string {
	switch a := action.(type) {
	case models.AskInitialInfo:
		return "I could not match this to a known problem yet. Can you describe the symptoms in more detail, " +
			"for example error messages, affected components and when it started?"

	case models.ConfirmRootCause:
		msg := fmt.Sprintf("Root cause identified: %s (confidence %.0f%%).", a.RootCause, a.Confidence*100)
		if len(a.SupportingStepIDs) > 0 {
			msg += "\nSupporting observations: " + strings.Join(a.SupportingStepIDs, ", ")
		}
		return msg

	case models.RecommendStep:
		var b strings.Builder
		if a.RootCause != "" {
			fmt.Fprintf(&b, "Working hypothesis: %s.\n", a.RootCause)
		}
		fmt.Fprintf(&b, "Please check whether %s.", a.Step.ObservedFact)
		if a.Step.Method != "" {
			fmt.Fprintf(&b, "\nHow: %s", a.Step.Method)
		}
		if a.Step.Analysis != "" {
			fmt.Fprintf(&b, "\nWhy: %s", a.Step.Analysis)
		}
		if len(a.Alternatives) > 0 {
			b.WriteString("\nOther things worth checking:")
			for _, alt := range a.Alternatives {
				fmt.Fprintf(&b, "\n  - %s", alt.ObservedFact)
			}
		}
		return b.String()

	case models.AskSymptom:
		return fmt.Sprintf("To test the hypothesis %q: can you confirm whether %s?", a.RootCause, a.MissingFact)

	case models.AskGeneral:
		return "I need more information. What else have you observed since the problem started?"

	default:
		return fmt.Sprintf("unsupported action %T", action)
	}
}
