package webhookpubsub

import (
	"net/url"

	"github.com/google/uuid"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
)

var validTopics = map[string]struct{}{
	application.TopicListingOpened:      {},
	application.TopicBiddingClosed:      {},
	application.TopicComputationStarted: {},
	application.TopicResultAttested:     {},
	application.TopicAuctionSettled:     {},
	application.TopicAuctionFailed:      {},
	application.TopicAuctionCancelled:   {},
	application.TopicAuctionExpired:     {},
	application.TopicAuctionStalled:     {},
	application.TopicAllEvents:          {},
}

// Webhook is one endpoint registered for a topic, stored in the local db.
type Webhook struct {
	Id       string `badgerhold:"key"`
	Topic    string `badgerholdIndex:"Topic"`
	Endpoint string
	Secret   string
}

// NewWebhook returns a webhook with a new id after validating the topic and
// the endpoint.
func NewWebhook(topic, endpoint, secret string) (*Webhook, error) {
	if _, ok := validTopics[topic]; !ok {
		return nil, ErrInvalidTopic
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, ErrInvalidEndpoint
	}
	return &Webhook{
		Id:       uuid.New().String(),
		Topic:    topic,
		Endpoint: endpoint,
		Secret:   secret,
	}, nil
}

func (h *Webhook) GetId() string       { return h.Id }
func (h *Webhook) GetTopic() string    { return h.Topic }
func (h *Webhook) GetEndpoint() string { return h.Endpoint }

// IsSecured tells whether the invocations of this webhook carry a signed
// bearer token.
func (h *Webhook) IsSecured() bool { return len(h.Secret) > 0 }
