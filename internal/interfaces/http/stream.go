package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPingInterval   = 30 * time.Second
	wsSendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamEvent is the JSON shape of one event pushed over the websocket.
type streamEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// EventHub pushes every published auction event to the connected websocket
// clients. It implements application.PubSubService as a publish-only sink:
// subscriptions are implicit in the connection itself.
type EventHub struct {
	mtx     sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: map[*wsClient]struct{}{}}
}

// errStreamSubscription is returned on subscription management calls: the
// hub is a publish-only sink.
var errStreamSubscription = errors.New(
	"the event stream does not manage subscriptions",
)

func (h *EventHub) Subscribe(_, _, _ string) (string, error) {
	return "", errStreamSubscription
}

func (h *EventHub) Unsubscribe(_ string) error { return nil }

func (h *EventHub) ListSubscriptions() ([]application.Subscription, error) {
	return nil, nil
}

// Publish broadcasts the event to every connected client. A client whose
// send buffer is full is dropped instead of blocking the others.
func (h *EventHub) Publish(topic string, message string) error {
	event, err := json.Marshal(streamEvent{
		Topic:   topic,
		Payload: json.RawMessage(message),
	})
	if err != nil {
		return err
	}

	h.mtx.RLock()
	defer h.mtx.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			log.Debug("dropping slow event stream client")
			go h.drop(client)
		}
	}
	return nil
}

func (h *EventHub) Close() error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.closed = true
	for client := range h.clients {
		close(client.send)
	}
	h.clients = map[*wsClient]struct{}{}
	return nil
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("failed to upgrade event stream request")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	h.mtx.Lock()
	if h.closed {
		h.mtx.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mtx.Unlock()

	go client.writePump()
	go client.readPump(func() { h.drop(client) })
}

func (h *EventHub) drop(client *wsClient) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards everything the client sends, it only serves to detect
// the connection closing.
func (c *wsClient) readPump(onClose func()) {
	defer onClose()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
