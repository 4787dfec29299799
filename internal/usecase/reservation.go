package usecase

import (
	"context"
	"fmt"

	"restaurant-agent/internal/domain"
)

// Reservation dialog stages, stored in the dialog record between turns.
const (
	stageAwaitingPartySize = "awaiting_party_size"
	stageAwaitingTime      = "awaiting_time"
)

const (
	promptPartySize  = "How many guests should I book the table for?"
	clarifyPartySize = "Sorry, I need a number of guests. How many people will be dining?"
	promptTime       = "When would you like the table? You can say something like \"7pm\"."
	clarifyTime      = "Sorry, I couldn't make out a time. When should I book the table for?"
)

// beginReservation starts the slot-filling dialog. Entities already supplied
// by the classifier pre-fill their fields, so a fully specified request can
// complete on the very first turn without a single prompt.
func (s *TurnService) beginReservation(ctx context.Context, turn domain.ConversationTurn, entities map[string][]string) error {
	state, err := s.store.GetReservation(ctx, turn.ConversationID)
	if err != nil {
		return newError(ErrorStoreUnavailable, "reservation_read_error", err)
	}
	if state.Status == domain.ReservationComplete {
		// The previous booking is final; a new request starts a fresh one.
		state = domain.ReservationState{}
	}
	state.Status = domain.ReservationCollecting

	if n, ok := extractPartySize(entities); ok {
		state.PartySize = &n
	}
	// A malformed time expression at entry is not an error: the dialog will
	// simply prompt for the time on its next turn.
	if t, err := extractTime(entities); err == nil && t != "" {
		state.Time = t
	}

	record := domain.DialogRecord{Dialog: dialogReservation}
	status, err := s.advanceReservation(ctx, turn.ConversationID, state, &record)
	if err != nil {
		return err
	}
	if status == dialogWaiting {
		if err := s.store.SetDialog(ctx, turn.ConversationID, record); err != nil {
			return newError(ErrorStoreUnavailable, "dialog_begin_error", err)
		}
	}
	return nil
}

// resumeReservation feeds the turn's text into the stage recorded for this
// conversation. Input the stage cannot parse is answered with a clarification
// and the stage is left untouched; there is no cap on re-prompts.
func (s *TurnService) resumeReservation(ctx context.Context, turn domain.ConversationTurn, record *domain.DialogRecord) (dialogStatus, error) {
	state, err := s.store.GetReservation(ctx, turn.ConversationID)
	if err != nil {
		return dialogUnknown, newError(ErrorStoreUnavailable, "reservation_read_error", err)
	}

	switch record.Stage {
	case stageAwaitingPartySize:
		n, ok := parsePartySize(turn.Text)
		if !ok {
			return s.reprompt(ctx, turn.ConversationID, clarifyPartySize)
		}
		state.PartySize = &n
	case stageAwaitingTime:
		t, err := normalizeTimeExpression(turn.Text)
		if err != nil {
			return s.reprompt(ctx, turn.ConversationID, clarifyTime)
		}
		state.Time = t
	default:
		return dialogUnknown, nil
	}

	return s.advanceReservation(ctx, turn.ConversationID, state, record)
}

// advanceReservation stages the updated record, moves to the next missing
// field, and sends the matching prompt, or confirms the booking when nothing
// is missing.
func (s *TurnService) advanceReservation(ctx context.Context, conversationID string, state domain.ReservationState, record *domain.DialogRecord) (dialogStatus, error) {
	var stage, prompt string
	switch {
	case state.PartySize == nil:
		stage, prompt = stageAwaitingPartySize, promptPartySize
	case state.Time == "":
		stage, prompt = stageAwaitingTime, promptTime
	default:
		state.Status = domain.ReservationComplete
	}

	if state.Status == domain.ReservationComplete {
		if err := s.store.SetReservation(ctx, conversationID, state); err != nil {
			return dialogUnknown, newError(ErrorStoreUnavailable, "reservation_stage_error", err)
		}
		if err := s.messenger.SendText(ctx, conversationID, confirmationText(state)); err != nil {
			return dialogUnknown, newError(ErrorUpstream, "confirmation_send_error", err)
		}
		return dialogComplete, nil
	}

	record.Stage = stage
	if err := s.store.SetReservation(ctx, conversationID, state); err != nil {
		return dialogUnknown, newError(ErrorStoreUnavailable, "reservation_stage_error", err)
	}
	if err := s.messenger.SendText(ctx, conversationID, prompt); err != nil {
		return dialogUnknown, newError(ErrorUpstream, "prompt_send_error", err)
	}
	return dialogWaiting, nil
}

func (s *TurnService) reprompt(ctx context.Context, conversationID, text string) (dialogStatus, error) {
	if err := s.messenger.SendText(ctx, conversationID, text); err != nil {
		return dialogUnknown, newError(ErrorUpstream, "reprompt_send_error", err)
	}
	return dialogWaiting, nil
}

func confirmationText(state domain.ReservationState) string {
	return fmt.Sprintf("Done! Your table for %d is booked for %s. See you then!",
		*state.PartySize, state.Time)
}
