package usecase

import (
	"context"

	"restaurant-agent/internal/domain"
)

// dialogStatus is the outcome of asking the dialog stack to continue the
// active dialog for one turn.
type dialogStatus int

const (
	// dialogEmpty: no dialog was active; the caller should route the turn.
	dialogEmpty dialogStatus = iota
	// dialogWaiting: the dialog consumed the input and waits for more.
	dialogWaiting
	// dialogComplete: the dialog finished and its record was removed.
	dialogComplete
	// dialogCancelled: an unrecognized dialog state forced a cancel-all.
	dialogCancelled
	// dialogUnknown is produced by a dialog that cannot make sense of its
	// own stored state; the stack turns it into a cancel-all.
	dialogUnknown
)

const dialogReservation = "reservation"

// continueDialog resumes the conversation's active dialog, if any. Waiting
// stages the updated record, Complete removes it. Any state this code does
// not recognize clears the record outright: dropping a turn's reply beats
// looping a broken dialog forever.
func (s *TurnService) continueDialog(ctx context.Context, turn domain.ConversationTurn) (dialogStatus, error) {
	record, err := s.store.GetDialog(ctx, turn.ConversationID)
	if err != nil {
		return dialogEmpty, newError(ErrorStoreUnavailable, "dialog_read_error", err)
	}
	if !record.Active() {
		return dialogEmpty, nil
	}

	status := dialogUnknown
	if record.Dialog == dialogReservation {
		status, err = s.resumeReservation(ctx, turn, &record)
		if err != nil {
			return dialogEmpty, err
		}
	}

	switch status {
	case dialogWaiting:
		if err := s.store.SetDialog(ctx, turn.ConversationID, record); err != nil {
			return dialogEmpty, newError(ErrorStoreUnavailable, "dialog_stage_error", err)
		}
		return dialogWaiting, nil
	case dialogComplete:
		if err := s.endDialog(ctx, turn.ConversationID); err != nil {
			return dialogEmpty, err
		}
		return dialogComplete, nil
	default:
		s.logger.Warn("cancelling dialog in unrecognized state",
			"conversationId", turn.ConversationID,
			"dialog", record.Dialog,
			"stage", record.Stage,
		)
		if err := s.endDialog(ctx, turn.ConversationID); err != nil {
			return dialogEmpty, err
		}
		return dialogCancelled, nil
	}
}

// endDialog removes the conversation's dialog record. The cleared record is
// staged like any other write and commits together with the reservation
// state at the end of the turn.
func (s *TurnService) endDialog(ctx context.Context, conversationID string) error {
	if err := s.store.SetDialog(ctx, conversationID, domain.DialogRecord{}); err != nil {
		return newError(ErrorStoreUnavailable, "dialog_end_error", err)
	}
	return nil
}
