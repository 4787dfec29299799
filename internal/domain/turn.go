package domain

// TurnKind classifies an inbound activity.
type TurnKind string

const (
	KindMessage           TurnKind = "message"
	KindParticipantJoined TurnKind = "participant-joined"
	KindOther             TurnKind = "other"
)

// ConversationTurn is a single inbound event for one conversation. It is
// created once per event and never mutated afterwards.
type ConversationTurn struct {
	Kind                 TurnKind
	Text                 string
	ConversationID       string
	RecipientID          string
	JoinedParticipantIDs []string
}
