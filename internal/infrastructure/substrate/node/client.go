package substratenode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"github.com/sealbid-network/sealbid-daemon/pkg/circuitbreaker"
)

// Client talks to a local substrate node exposing the DHT and the routed
// messaging primitives: plain HTTP for DHT get/put and message sends, a
// websocket stream for message delivery and raw route frames.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	handler    ports.MessageHandler
}

var (
	_ ports.DHT       = (*Client)(nil)
	_ ports.Messenger = (*Client)(nil)
)

type dhtRecordJSON struct {
	Sequence  uint64 `json:"sequence"`
	Payload   []byte `json:"payload"`
	Owner     string `json:"owner"`
	Signature []byte `json:"signature"`
}

type dhtPutJSON struct {
	ExpectedSequence uint64 `json:"expected_sequence"`
	Payload          []byte `json:"payload"`
	Signature        []byte `json:"signature"`
}

type messageJSON struct {
	Peer    string `json:"peer"`
	Sender  string `json:"sender"`
	Payload []byte `json:"payload"`
}

// NewClient returns a client for the substrate node listening on the given
// endpoint.
func NewClient(endpoint string, requestTimeout time.Duration) (*Client, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("substrate endpoint is not a valid url: %s", err)
	}

	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		cb:         circuitbreaker.NewCircuitBreaker("substrate"),
	}, nil
}

// Get implements the ports.DHT interface.
func (c *Client) Get(ctx context.Context, key string) (*ports.DHTRecord, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, c.dhtURL(key), nil,
		)
		if err != nil {
			return nil, err
		}
		res, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusNotFound {
			return nil, ports.ErrRecordNotFound
		}
		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("substrate node replied with status %d", res.StatusCode)
		}

		record := &dhtRecordJSON{}
		if err := json.NewDecoder(res.Body).Decode(record); err != nil {
			return nil, err
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}

	record := resp.(*dhtRecordJSON)
	return &ports.DHTRecord{
		Sequence:  record.Sequence,
		Payload:   record.Payload,
		Owner:     record.Owner,
		Signature: record.Signature,
	}, nil
}

// Put implements the ports.DHT interface.
func (c *Client) Put(
	ctx context.Context, key string, expectedSeq uint64, payload, signature []byte,
) error {
	if len(payload) > ports.MaxDHTPayloadSize {
		return ports.ErrPayloadTooLarge
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		body, err := json.Marshal(dhtPutJSON{
			ExpectedSequence: expectedSeq,
			Payload:          payload,
			Signature:        signature,
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(
			ctx, http.MethodPut, c.dhtURL(key), bytes.NewReader(body),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		switch res.StatusCode {
		case http.StatusOK, http.StatusCreated:
			return nil, nil
		case http.StatusConflict:
			return nil, ports.ErrSequenceConflict
		case http.StatusRequestEntityTooLarge:
			return nil, ports.ErrPayloadTooLarge
		default:
			return nil, fmt.Errorf("substrate node replied with status %d", res.StatusCode)
		}
	})
	return err
}

// Send implements the ports.Messenger interface.
func (c *Client) Send(ctx context.Context, peer string, payload []byte) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		body, err := json.Marshal(messageJSON{Peer: peer, Payload: payload})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, c.endpoint+"/v1/messages", bytes.NewReader(body),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusNotFound {
			return nil, ports.ErrPeerUnreachable
		}
		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("substrate node replied with status %d", res.StatusCode)
		}
		return nil, nil
	})
	return err
}

// RegisterHandler implements the ports.Messenger interface.
func (c *Client) RegisterHandler(handler ports.MessageHandler) {
	c.handler = handler
}

// ListenMessages connects to the delivery stream of the substrate node and
// dispatches every arriving message to the registered handler until the
// context ends. It reconnects with a flat backoff on stream errors.
func (c *Client) ListenMessages(ctx context.Context) {
	for {
		if err := c.consumeStream(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("message stream interrupted, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) consumeStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(
		ctx, c.wsURL("/v1/messages/stream"), nil,
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg := &messageJSON{}
		if err := json.Unmarshal(raw, msg); err != nil {
			log.WithError(err).Warn("skipping malformed delivery frame")
			continue
		}
		if c.handler != nil {
			c.handler(msg.Sender, msg.Payload)
		}
	}
}

// OpenRoute implements the ports.Messenger interface by opening a dedicated
// websocket carrying the raw route frames.
func (c *Client) OpenRoute(
	ctx context.Context, peer, channel string,
) (io.ReadWriteCloser, error) {
	routeURL := fmt.Sprintf(
		"%s?peer=%s&channel=%s",
		c.wsURL("/v1/routes"), url.QueryEscape(peer), url.QueryEscape(channel),
	)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, routeURL, nil)
	if err != nil {
		return nil, ports.ErrPeerUnreachable
	}
	return &wsStream{conn: conn}, nil
}

func (c *Client) dhtURL(key string) string {
	return fmt.Sprintf("%s/v1/dht/%s", c.endpoint, url.PathEscape(key))
}

func (c *Client) wsURL(path string) string {
	ws := strings.Replace(c.endpoint, "http", "ws", 1)
	return ws + path
}

// wsStream adapts a websocket connection carrying binary frames to the
// io.ReadWriteCloser byte-stream contract of a route.
type wsStream struct {
	conn      *websocket.Conn
	remainder []byte
}

func (s *wsStream) Read(p []byte) (int, error) {
	if len(s.remainder) == 0 {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return 0, io.EOF
		}
		s.remainder = frame
	}
	n := copy(p, s.remainder)
	s.remainder = s.remainder[n:]
	return n, nil
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
