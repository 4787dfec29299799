package usecase

import (
	"context"
	"errors"
	"log/slog"

	"restaurant-agent/internal/domain"
)

const welcomeText = "Hi! I'm the Cafe bot. Ask me anything about the restaurant, " +
	"ask for today's speciality, or say \"book a table\" to make a reservation."

// Recognizer classifies a message's intent.
type Recognizer interface {
	Recognize(ctx context.Context, text string) (domain.IntentResult, error)
}

// KnowledgeBase returns ranked candidate answers for free text.
type KnowledgeBase interface {
	GetAnswers(ctx context.Context, text string) ([]domain.AnswerCandidate, error)
}

// StateStore holds per-conversation state across turns. Set calls only stage
// writes; nothing is durable until Flush commits the whole turn's staged
// writes atomically. Reads observe staged writes from the current turn.
type StateStore interface {
	GetReservation(ctx context.Context, conversationID string) (domain.ReservationState, error)
	SetReservation(ctx context.Context, conversationID string, state domain.ReservationState) error
	GetDialog(ctx context.Context, conversationID string) (domain.DialogRecord, error)
	SetDialog(ctx context.Context, conversationID string, record domain.DialogRecord) error
	Flush(ctx context.Context) error
}

// Messenger delivers outbound messages and reports whether a reply has
// already been sent during the current turn.
type Messenger interface {
	StartTurn(conversationID string)
	SendText(ctx context.Context, conversationID, text string) error
	SendCarousel(ctx context.Context, conversationID string, cards []domain.HeroCard) error
	HasResponded(conversationID string) bool
}

// TurnService dispatches one inbound conversation turn: continue an active
// dialog if there is one, otherwise classify the message's intent and route
// it, falling back to the knowledge base.
type TurnService struct {
	recognizer Recognizer
	knowledge  KnowledgeBase
	store      StateStore
	messenger  Messenger
	logger     *slog.Logger
}

func NewTurnService(r Recognizer, kb KnowledgeBase, store StateStore, m Messenger, logger *slog.Logger) (*TurnService, error) {
	if r == nil {
		return nil, errors.New("usecase: recognizer must not be nil")
	}
	if kb == nil {
		return nil, errors.New("usecase: knowledge base must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnService{
		recognizer: r,
		knowledge:  kb,
		store:      store,
		messenger:  m,
		logger:     logger,
	}, nil
}

// HandleTurn processes a single inbound turn. Join events are answered with
// the fixed welcome and never touch dialog or reservation state; message
// events run the dialog-first dispatch and always end in exactly one state
// commit. All other event kinds are ignored.
func (s *TurnService) HandleTurn(ctx context.Context, turn domain.ConversationTurn) error {
	s.messenger.StartTurn(turn.ConversationID)

	switch turn.Kind {
	case domain.KindParticipantJoined:
		return s.handleJoin(ctx, turn)
	case domain.KindMessage:
		return s.handleMessage(ctx, turn)
	default:
		return nil
	}
}

func (s *TurnService) handleJoin(ctx context.Context, turn domain.ConversationTurn) error {
	for _, id := range turn.JoinedParticipantIDs {
		if id != turn.RecipientID {
			continue
		}
		if err := s.messenger.SendText(ctx, turn.ConversationID, welcomeText); err != nil {
			return newError(ErrorUpstream, "welcome_send_error", err)
		}
		return nil
	}
	return nil
}

func (s *TurnService) handleMessage(ctx context.Context, turn domain.ConversationTurn) error {
	status, err := s.continueDialog(ctx, turn)
	if err != nil {
		return err
	}

	if status == dialogEmpty || (status == dialogComplete && !s.messenger.HasResponded(turn.ConversationID)) {
		res, err := s.recognizer.Recognize(ctx, turn.Text)
		if err != nil {
			return newError(ErrorUpstream, "recognizer_error", err)
		}
		if err := s.route(ctx, turn, res); err != nil {
			return err
		}
	}

	return s.commit(ctx, turn.ConversationID)
}

// commit re-saves the reservation record and flushes all staged writes in one
// atomic batch. The re-save is a no-op write on turns with no reservation
// activity; the redundancy buys an unconditional durability guarantee.
func (s *TurnService) commit(ctx context.Context, conversationID string) error {
	state, err := s.store.GetReservation(ctx, conversationID)
	if err != nil {
		return newError(ErrorStoreUnavailable, "reservation_read_error", err)
	}
	if err := s.store.SetReservation(ctx, conversationID, state); err != nil {
		return newError(ErrorStoreUnavailable, "reservation_stage_error", err)
	}
	// A cancelled turn must not commit a partial write set.
	if err := ctx.Err(); err != nil {
		return newError(ErrorInternal, "turn_cancelled", err)
	}
	if err := s.store.Flush(ctx); err != nil {
		return newError(ErrorStoreUnavailable, "state_flush_error", err)
	}
	return nil
}
