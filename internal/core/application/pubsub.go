package application

// Auction lifecycle topics published to operator-registered subscribers.
const (
	TopicListingOpened      = "listing.opened"
	TopicBiddingClosed      = "bidding.closed"
	TopicComputationStarted = "computation.started"
	TopicResultAttested     = "result.attested"
	TopicAuctionSettled     = "auction.settled"
	TopicAuctionFailed      = "auction.failed"
	TopicAuctionCancelled   = "auction.cancelled"
	TopicAuctionExpired     = "auction.expired"
	TopicAuctionStalled     = "auction.stalled"
	TopicAllEvents          = "*"
)

// Subscription is the info of one client subscribed to a topic.
type Subscription interface {
	GetId() string
	GetTopic() string
	GetEndpoint() string
	IsSecured() bool
}

// PubSubService defines the methods of the service publishing auction
// lifecycle events to external subscribers.
type PubSubService interface {
	// Subscribe registers a client for a topic and returns the subscription id.
	Subscribe(topic, endpoint, secret string) (string, error)
	// Unsubscribe removes the subscription with the given id.
	Unsubscribe(id string) error
	// ListSubscriptions returns the info of all registered subscriptions.
	ListSubscriptions() ([]Subscription, error)
	// Publish publishes a message for a certain topic. All clients
	// subscribed for such topic will receive the message.
	Publish(topic string, message string) error
	// Close gracefully closes the connection with the internal store.
	Close() error
}
