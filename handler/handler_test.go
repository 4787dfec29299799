package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"restaurant-agent/internal/domain"
	"restaurant-agent/internal/usecase"
)

type stubDispatcher struct {
	err  error
	turn domain.ConversationTurn
}

func (s *stubDispatcher) HandleTurn(_ context.Context, turn domain.ConversationTurn) error {
	s.turn = turn
	return s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/messages",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_MessageActivity(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(
		`{"type":"message","text":"book a table","conversation":{"id":"conv-1"},"recipient":{"id":"bot-1"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, domain.KindMessage, d.turn.Kind)
	require.Equal(t, "book a table", d.turn.Text)
	require.Equal(t, "conv-1", d.turn.ConversationID)
	require.Equal(t, "bot-1", d.turn.RecipientID)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	out := parseBody[statusResponse](t, resp.Body)
	require.Equal(t, "ok", out.Status)
}

func TestHandle_ConversationUpdateActivity(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), makeEvent(
		`{"type":"conversationUpdate","conversation":{"id":"conv-1"},"recipient":{"id":"bot-1"},"membersAdded":[{"id":"user-7"},{"id":"bot-1"}]}`))
	require.NoError(t, err)

	require.Equal(t, domain.KindParticipantJoined, d.turn.Kind)
	require.Equal(t, []string{"user-7", "bot-1"}, d.turn.JoinedParticipantIDs)
}

func TestHandle_UnknownActivityType(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), makeEvent(
		`{"type":"typing","conversation":{"id":"conv-1"}}`))
	require.NoError(t, err)
	require.Equal(t, domain.KindOther, d.turn.Kind)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_MissingConversationID(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"type":"message","text":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_MapsDispatchErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "recognizer_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "store unavailable", err: &usecase.Error{Code: usecase.ErrorStoreUnavailable, Reason: "state_flush_error"}, status: http.StatusServiceUnavailable, code: string(usecase.ErrorStoreUnavailable)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "turn_cancelled"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHandler(&stubDispatcher{err: tc.err})
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(
				`{"type":"message","text":"hi","conversation":{"id":"conv-1"}}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{})
	require.NoError(t, err)

	event := makeEvent(`{"type":"message","text":"hi","conversation":{"id":"conv-1"}}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
