package webhookpubsub_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	webhookpubsub "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/pubsub/webhook"
	dbbadger "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/storage/db/badger"
)

func newTestService(t *testing.T) application.PubSubService {
	t.Helper()
	store, err := dbbadger.NewWebhookStore(t.TempDir(), nil)
	require.NoError(t, err)

	svc, err := webhookpubsub.NewWebhookPubSubService(store, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

type capturedRequest struct {
	body          string
	authorization string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mtx sync.Mutex
	captured := []capturedRequest{}

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mtx.Lock()
			captured = append(captured, capturedRequest{
				body:          string(body),
				authorization: r.Header.Get("Authorization"),
			})
			mtx.Unlock()
		},
	))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mtx.Lock()
		defer mtx.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	svc := newTestService(t)
	server, requestsOf := newCaptureServer(t)

	id, err := svc.Subscribe(application.TopicAuctionSettled, server.URL, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	message := `{"listingId":"listing-1","status":"settled"}`
	require.NoError(t, svc.Publish(application.TopicAuctionSettled, message))

	requests := requestsOf()
	require.Len(t, requests, 1)
	require.Equal(t, message, requests[0].body)
	require.Empty(t, requests[0].authorization)

	// events of other topics never reach this subscription
	require.NoError(t, svc.Publish(application.TopicBiddingClosed, message))
	require.Len(t, requestsOf(), 1)
}

func TestSecuredEndpointGetsSignedToken(t *testing.T) {
	svc := newTestService(t)
	server, requestsOf := newCaptureServer(t)
	secret := "shhh"

	_, err := svc.Subscribe(application.TopicAuctionSettled, server.URL, secret)
	require.NoError(t, err)

	require.NoError(t, svc.Publish(application.TopicAuctionSettled, "{}"))

	requests := requestsOf()
	require.Len(t, requests, 1)
	require.True(t, strings.HasPrefix(requests[0].authorization, "Bearer "))

	tokenString := strings.TrimPrefix(requests[0].authorization, "Bearer ")
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
}

func TestAllEventsSubscription(t *testing.T) {
	svc := newTestService(t)
	server, requestsOf := newCaptureServer(t)

	_, err := svc.Subscribe(application.TopicAllEvents, server.URL, "")
	require.NoError(t, err)

	require.NoError(t, svc.Publish(application.TopicListingOpened, "{}"))
	require.NoError(t, svc.Publish(application.TopicAuctionSettled, "{}"))
	require.Len(t, requestsOf(), 2)
}

func TestUnsubscribe(t *testing.T) {
	svc := newTestService(t)
	server, requestsOf := newCaptureServer(t)

	id, err := svc.Subscribe(application.TopicAuctionSettled, server.URL, "")
	require.NoError(t, err)

	subs, err := svc.ListSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, id, subs[0].GetId())
	require.Equal(t, application.TopicAuctionSettled, subs[0].GetTopic())
	require.False(t, subs[0].IsSecured())

	require.NoError(t, svc.Unsubscribe(id))
	// removing an unknown subscription is a no-op
	require.NoError(t, svc.Unsubscribe(id))

	subs, err = svc.ListSubscriptions()
	require.NoError(t, err)
	require.Empty(t, subs)

	require.NoError(t, svc.Publish(application.TopicAuctionSettled, "{}"))
	require.Empty(t, requestsOf())
}

func TestSubscribeRejections(t *testing.T) {
	svc := newTestService(t)

	t.Run("invalid topic", func(t *testing.T) {
		_, err := svc.Subscribe("not.a.topic", "http://localhost:8080", "")
		require.ErrorIs(t, err, webhookpubsub.ErrInvalidTopic)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		_, err := svc.Subscribe(application.TopicAuctionSettled, "not a url", "")
		require.ErrorIs(t, err, webhookpubsub.ErrInvalidEndpoint)
	})
}

func TestPublishReportsFailingEndpoint(t *testing.T) {
	svc := newTestService(t)
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	))
	t.Cleanup(server.Close)

	_, err := svc.Subscribe(application.TopicAuctionSettled, server.URL, "")
	require.NoError(t, err)

	err = svc.Publish(application.TopicAuctionSettled, "{}")
	require.Error(t, err)
}
