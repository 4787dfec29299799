package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"restaurant-agent/internal/domain"
	"restaurant-agent/internal/usecase"
)

// inboundActivity is the webhook payload shape delivered by the transport.
type inboundActivity struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	MembersAdded []struct {
		ID string `json:"id"`
	} `json:"membersAdded"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Dispatcher is the turn-dispatch entry point consumed by the handler.
type Dispatcher interface {
	HandleTurn(ctx context.Context, turn domain.ConversationTurn) error
}

// Handler adapts API Gateway webhook events to conversation turns.
type Handler struct {
	dispatcher Dispatcher
}

func NewHandler(d Dispatcher) (*Handler, error) {
	if d == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	return &Handler{dispatcher: d}, nil
}

// Handle decodes the inbound activity, dispatches the turn, and maps usecase
// error codes to HTTP statuses.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(event.Headers)

	var act inboundActivity
	if err := json.Unmarshal([]byte(event.Body), &act); err != nil {
		return respondError(http.StatusBadRequest, usecase.ErrorInvalidInput, correlationID), nil
	}
	turn, ok := toTurn(act)
	if !ok {
		return respondError(http.StatusBadRequest, usecase.ErrorInvalidInput, correlationID), nil
	}

	if err := h.dispatcher.HandleTurn(ctx, turn); err != nil {
		status, code := mapError(err)
		return respondError(status, code, correlationID), nil
	}
	return respond(http.StatusOK, statusResponse{Status: "ok"}, correlationID), nil
}

// toTurn maps the wire activity to the immutable turn consumed by the core.
func toTurn(act inboundActivity) (domain.ConversationTurn, bool) {
	if act.Conversation.ID == "" {
		return domain.ConversationTurn{}, false
	}

	kind := domain.KindOther
	switch act.Type {
	case "message":
		kind = domain.KindMessage
	case "conversationUpdate":
		kind = domain.KindParticipantJoined
	}

	joined := make([]string, 0, len(act.MembersAdded))
	for _, m := range act.MembersAdded {
		joined = append(joined, m.ID)
	}

	return domain.ConversationTurn{
		Kind:                 kind,
		Text:                 act.Text,
		ConversationID:       act.Conversation.ID,
		RecipientID:          act.Recipient.ID,
		JoinedParticipantIDs: joined,
	}, true
}

func mapError(err error) (int, usecase.ErrorCode) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, usecase.ErrorInternal
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, ucErr.Code
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, ucErr.Code
	case usecase.ErrorStoreUnavailable:
		return http.StatusServiceUnavailable, ucErr.Code
	default:
		return http.StatusInternalServerError, usecase.ErrorInternal
	}
}

func respond(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	raw, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": correlationID,
		},
		Body: string(raw),
	}
}

func respondError(status int, code usecase.ErrorCode, correlationID string) events.APIGatewayProxyResponse {
	return respond(status, errorResponse{Error: string(code)}, correlationID)
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == "X-Correlation-Id" && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
