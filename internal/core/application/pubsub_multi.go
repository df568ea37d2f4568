package application

import log "github.com/sirupsen/logrus"

// multiPubSub fans every published event out to a set of services. The
// subscription management is delegated to the primary one; the others are
// publish-only sinks like the live event stream.
type multiPubSub struct {
	primary PubSubService
	sinks   []PubSubService
}

// NewMultiPubSubService returns a PubSubService publishing to the primary
// service and to every additional sink.
func NewMultiPubSubService(
	primary PubSubService, sinks ...PubSubService,
) PubSubService {
	return &multiPubSub{primary: primary, sinks: sinks}
}

func (m *multiPubSub) Subscribe(topic, endpoint, secret string) (string, error) {
	return m.primary.Subscribe(topic, endpoint, secret)
}

func (m *multiPubSub) Unsubscribe(id string) error {
	return m.primary.Unsubscribe(id)
}

func (m *multiPubSub) ListSubscriptions() ([]Subscription, error) {
	return m.primary.ListSubscriptions()
}

func (m *multiPubSub) Publish(topic string, message string) error {
	for _, sink := range m.sinks {
		if err := sink.Publish(topic, message); err != nil {
			log.WithError(err).Debug("event sink publication failed")
		}
	}
	return m.primary.Publish(topic, message)
}

func (m *multiPubSub) Close() error {
	for _, sink := range m.sinks {
		sink.Close()
	}
	return m.primary.Close()
}
