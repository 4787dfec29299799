package domain

// IntentResult is the classifier's verdict for one turn: the top-ranked
// intent label, its confidence, and any entities extracted from the text.
// Consumed once per turn, never persisted.
type IntentResult struct {
	Intent   string
	Score    float64
	Entities map[string][]string
}

// AnswerCandidate is one ranked knowledge-base answer.
type AnswerCandidate struct {
	Text  string
	Score float64
}
