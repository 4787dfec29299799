package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"restaurant-agent/internal/domain"
)

type fakeGetter struct {
	val string
	err error
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	return f.val, f.err
}

func validGetter() *fakeGetter {
	return &fakeGetter{val: `{"token":"conn-token-1"}`}
}

type capturedRequest struct {
	path string
	auth string
	act  activity
}

func newCaptureServer(t *testing.T, captured *[]capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var act activity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&act))
		*captured = append(*captured, capturedRequest{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			act:  act,
		})
		w.WriteHeader(http.StatusCreated)
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server, g Getter) *Client {
	t.Helper()
	c, err := NewClient(g, "/cafe-bot", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient(nil, "/cafe-bot")
	require.Error(t, err)

	_, err = NewClient(validGetter(), "  ")
	require.Error(t, err)
}

func TestSendText_PostsMessageActivity(t *testing.T) {
	var captured []capturedRequest
	srv := newCaptureServer(t, &captured)
	defer srv.Close()

	c := newTestClient(t, srv, validGetter())
	require.NoError(t, c.SendText(context.Background(), "conv-1", "hello there"))

	require.Len(t, captured, 1)
	require.Equal(t, "/v3/conversations/conv-1/activities", captured[0].path)
	require.Equal(t, "Bearer conn-token-1", captured[0].auth)
	require.Equal(t, "message", captured[0].act.Type)
	require.Equal(t, "hello there", captured[0].act.Text)
	require.Equal(t, "conv-1", captured[0].act.Conversation.ID)
	require.NotEmpty(t, captured[0].act.ID)
}

func TestSendCarousel_SingleActivityWithAllCards(t *testing.T) {
	var captured []capturedRequest
	srv := newCaptureServer(t, &captured)
	defer srv.Close()

	cards := []domain.HeroCard{
		{Title: "Carbonara", Subtitle: "pasta", ImageURL: "https://img/carbonara.jpg"},
		{Title: "Pizza", Subtitle: "pizza", ImageURL: "https://img/pizza.jpg"},
		{Title: "Lasagna", Subtitle: "layers", ImageURL: "https://img/lasagna.jpg"},
	}

	c := newTestClient(t, srv, validGetter())
	require.NoError(t, c.SendCarousel(context.Background(), "conv-1", cards))

	require.Len(t, captured, 1, "a carousel is one activity, not one per card")
	act := captured[0].act
	require.Equal(t, "carousel", act.AttachmentLayout)
	require.Len(t, act.Attachments, 3)
	require.Equal(t, heroCardContentType, act.Attachments[0].ContentType)
	require.Equal(t, "Carbonara", act.Attachments[0].Content.Title)
	require.Equal(t, "https://img/pizza.jpg", act.Attachments[1].Content.Images[0].URL)
}

func TestHasResponded_TracksCurrentTurn(t *testing.T) {
	var captured []capturedRequest
	srv := newCaptureServer(t, &captured)
	defer srv.Close()

	c := newTestClient(t, srv, validGetter())

	c.StartTurn("conv-1")
	require.False(t, c.HasResponded("conv-1"))

	require.NoError(t, c.SendText(context.Background(), "conv-1", "hi"))
	require.True(t, c.HasResponded("conv-1"))
	require.False(t, c.HasResponded("conv-2"), "tracking is per conversation")

	c.StartTurn("conv-1")
	require.False(t, c.HasResponded("conv-1"), "a new turn resets the flag")
}

func TestSend_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, validGetter())
	err := c.SendText(context.Background(), "conv-1", "hi")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.HTTPStatusCode())
	require.False(t, c.HasResponded("conv-1"), "a failed send is not a response")
}

func TestSend_TokenFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("must not reach the service without a token")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &fakeGetter{val: `{"token":""}`})
	err := c.SendText(context.Background(), "conv-1", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bearer token is empty")
}
