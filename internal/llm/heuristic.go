package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/moolen/sleuth/internal/embedding"
)

var (
	positiveWords = map[string]bool{
		"yes": true, "yep": true, "yeah": true, "y": true, "done": true, "did": true,
		"checked": true, "ran": true, "executed": true, "observed": true, "saw": true,
		"see": true, "confirmed": true, "confirm": true, "correct": true, "true": true,
		"indeed": true, "ok": true, "okay": true, "looked": true, "verified": true,
	}
	negativeWords = map[string]bool{
		"no": true, "nope": true, "not": true, "didn't": true, "didnt": true,
		"haven't": true, "havent": true, "can't": true, "cant": true, "cannot": true,
		"couldn't": true, "couldnt": true, "unable": true, "skip": true, "skipped": true,
		"later": true, "yet": true, "false": true, "n/a": true,
	}
	acknowledgements = map[string]bool{
		"yes": true, "no": true, "ok": true, "okay": true, "done": true, "yep": true,
		"nope": true, "yeah": true, "thanks": true, "sure": true,
	}
	sentenceSplit = regexp.MustCompile(`[.!?;\n]+`)
	wordPattern   = regexp.MustCompile(`[a-z0-9_'/]+`)
)

// HeuristicInterpreter is a keyword-based interpreter that needs no
// external service. It approximates the language-model interpreter and is
// used when that one is not configured or fails.
type HeuristicInterpreter struct{}

// NewHeuristicInterpreter returns the keyword interpreter.
func NewHeuristicInterpreter() *HeuristicInterpreter {
	return &HeuristicInterpreter{}
}

func (h *HeuristicInterpreter) Name() string {
	return "heuristic"
}

// ExtractFacts splits text into sentences and keeps every sentence that
// carries more than a bare acknowledgement. Negated sentences report what
// was not seen and are dropped, as are duplicates including facts already
// confirmed.
func (h *HeuristicInterpreter) ExtractFacts(_ context.Context, text string, tc TurnContext) ([]string, error) {
	known := make(map[string]bool, len(tc.ConfirmedFacts))
	for _, f := range tc.ConfirmedFacts {
		known[normalize(f)] = true
	}

	var facts []string
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.Trim(strings.TrimSpace(sentence), ",:-")
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || isAcknowledgement(sentence) || isNegated(sentence) {
			continue
		}
		key := normalize(sentence)
		if known[key] {
			continue
		}
		known[key] = true
		facts = append(facts, sentence)
	}
	return facts, nil
}

// ClassifyFeedback counts positive and negative keywords; the step counts
// as executed when positives win.
func (h *HeuristicInterpreter) ClassifyFeedback(_ context.Context, text string, _ TurnContext) (bool, error) {
	var pos, neg int
	for _, w := range words(text) {
		switch {
		case negativeWords[w]:
			neg++
		case positiveWords[w]:
			pos++
		}
	}
	return pos > neg, nil
}

func words(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

func isAcknowledgement(sentence string) bool {
	ws := words(sentence)
	if len(ws) == 0 {
		return true
	}
	for _, w := range ws {
		if !acknowledgements[w] {
			return false
		}
	}
	return true
}

func isNegated(sentence string) bool {
	for _, w := range words(sentence) {
		if negativeWords[w] {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(embedding.Tokenize(s), " ")
}
