package domain

// ReservationStatus tracks whether a reservation is still collecting fields.
type ReservationStatus string

const (
	ReservationCollecting ReservationStatus = "collecting"
	ReservationComplete   ReservationStatus = "complete"
)

// ReservationState is the per-conversation durable reservation record. It is
// created lazily on the first reservation turn and filled field-by-field
// across turns. Once Status is complete the record is final; a new
// reservation starts over from a fresh record.
type ReservationState struct {
	PartySize *int              `json:"partySize,omitempty"`
	Time      string            `json:"time,omitempty"`
	Status    ReservationStatus `json:"status,omitempty"`
}
