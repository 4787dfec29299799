package usecase

import (
	"context"

	"restaurant-agent/internal/domain"
)

const notUnderstoodText = "Sorry, I didn't understand that."

// answerFromKnowledge replies with the single best knowledge-base answer, or
// the fixed not-understood text when the knowledge base has nothing. No
// disambiguation: second-ranked candidates are never shown.
func (s *TurnService) answerFromKnowledge(ctx context.Context, turn domain.ConversationTurn) error {
	answers, err := s.knowledge.GetAnswers(ctx, turn.Text)
	if err != nil {
		return newError(ErrorUpstream, "knowledge_error", err)
	}

	text := notUnderstoodText
	if len(answers) > 0 {
		text = answers[0].Text
	}
	if err := s.messenger.SendText(ctx, turn.ConversationID, text); err != nil {
		return newError(ErrorUpstream, "answer_send_error", err)
	}
	return nil
}
