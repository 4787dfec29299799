package usecase

import (
	"context"

	"restaurant-agent/internal/domain"
)

// intentKind is the closed set of intents the router dispatches on. The
// classifier's free-form labels are collapsed into it in one place so that
// no label string leaks into branching logic elsewhere.
type intentKind int

const (
	intentUnknown intentKind = iota
	intentSpecialties
	intentReservation
)

const (
	labelSpecialties = "TodaysSpeciality"
	labelReservation = "BookTable"

	// Strictly-greater-than: a score of exactly 0.5 is not trusted.
	confidenceThreshold = 0.5
)

func classify(res domain.IntentResult) intentKind {
	if res.Score <= confidenceThreshold {
		return intentUnknown
	}
	switch res.Intent {
	case labelSpecialties:
		return intentSpecialties
	case labelReservation:
		return intentReservation
	default:
		return intentUnknown
	}
}

// route dispatches a classified turn: the specialties carousel, the
// reservation dialog, or the knowledge-base fallback for everything else.
func (s *TurnService) route(ctx context.Context, turn domain.ConversationTurn, res domain.IntentResult) error {
	switch classify(res) {
	case intentSpecialties:
		if err := s.messenger.SendCarousel(ctx, turn.ConversationID, specialities()); err != nil {
			return newError(ErrorUpstream, "carousel_send_error", err)
		}
		return nil
	case intentReservation:
		return s.beginReservation(ctx, turn, res.Entities)
	default:
		return s.answerFromKnowledge(ctx, turn)
	}
}

func specialities() []domain.HeroCard {
	return []domain.HeroCard{
		{
			Title:    "Carbonara",
			Subtitle: "Spaghetti with pancetta, egg and pecorino",
			ImageURL: "https://upload.wikimedia.org/wikipedia/commons/3/33/Espaguetis_carbonara.jpg",
		},
		{
			Title:    "Pizza",
			Subtitle: "Wood-fired margherita with fresh basil",
			ImageURL: "https://upload.wikimedia.org/wikipedia/commons/a/a3/Eq_it-na_pizza-margherita_sep2005_sml.jpg",
		},
		{
			Title:    "Lasagna",
			Subtitle: "Layered pasta with ragù and béchamel",
			ImageURL: "https://upload.wikimedia.org/wikipedia/commons/6/6c/Lasagne_-_stonesoup.jpg",
		},
	}
}
