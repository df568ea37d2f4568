package webhookpubsub

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sony/gobreaker"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	"github.com/sealbid-network/sealbid-daemon/pkg/circuitbreaker"
)

const defaultRequestTimeout = 15 * time.Second

type webhookService struct {
	store      *badgerhold.Store
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewWebhookPubSubService returns an application.PubSubService invoking the
// registered webhook endpoints on every published event. Invocations go
// through a circuit breaker so a dead endpoint cannot pile up requests.
func NewWebhookPubSubService(
	store *badgerhold.Store, requestTimeout time.Duration,
) (application.PubSubService, error) {
	if store == nil {
		return nil, ErrNullStore
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &webhookService{
		store:      store,
		httpClient: &http.Client{Timeout: requestTimeout},
		cb:         circuitbreaker.NewCircuitBreaker("webhook"),
	}, nil
}

func (ws *webhookService) Subscribe(topic, endpoint, secret string) (string, error) {
	hook, err := NewWebhook(topic, endpoint, secret)
	if err != nil {
		return "", err
	}
	if err := ws.store.Insert(hook.Id, *hook); err != nil {
		return "", err
	}
	return hook.Id, nil
}

func (ws *webhookService) Unsubscribe(id string) error {
	if err := ws.store.Delete(id, Webhook{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (ws *webhookService) ListSubscriptions() ([]application.Subscription, error) {
	hooks := []Webhook{}
	if err := ws.store.Find(&hooks, nil); err != nil {
		return nil, err
	}
	subs := make([]application.Subscription, 0, len(hooks))
	for i := range hooks {
		hook := hooks[i]
		subs = append(subs, &hook)
	}
	return subs, nil
}

// Publish makes a POST request to every webhook endpoint registered for the
// given topic or for all events. Endpoints are invoked concurrently and the
// first error is reported after every invocation completed.
func (ws *webhookService) Publish(topic string, message string) error {
	hooks := []Webhook{}
	query := badgerhold.Where("Topic").Eq(topic).
		Or(badgerhold.Where("Topic").Eq(application.TopicAllEvents))
	if err := ws.store.Find(&hooks, query); err != nil {
		return err
	}

	eg := &errgroup.Group{}
	for i := range hooks {
		hook := hooks[i]
		eg.Go(func() error { return ws.doRequest(&hook, message) })
	}
	return eg.Wait()
}

func (ws *webhookService) Close() error {
	return ws.store.Close()
}

func (ws *webhookService) doRequest(hook *Webhook, payload string) error {
	_, err := ws.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequest("POST", hook.Endpoint, strings.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if hook.IsSecured() {
			token := jwt.New(jwt.SigningMethodHS256)
			tokenString, _ := token.SignedString([]byte(hook.Secret))
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", tokenString))
		}

		resp, err := ws.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf(
				"webhook %s replied with status %d: %s",
				hook.Id, resp.StatusCode, string(body),
			)
		}
		return nil, nil
	})
	return err
}
