package webhookpubsub

import "errors"

var (
	// ErrNullStore specifies that a store is required.
	ErrNullStore = errors.New("webhook store must not be null")
	// ErrInvalidTopic is returned whenever attempting to subscribe to an
	// unknown topic.
	ErrInvalidTopic = errors.New("topic is invalid")
	// ErrInvalidEndpoint specifies that the webhook endpoint is not a valid
	// URI.
	ErrInvalidEndpoint = errors.New("webhook endpoint must be a valid URI")
)
