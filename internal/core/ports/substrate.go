package ports

import (
	"context"
	"errors"
	"io"
)

// MaxDHTPayloadSize is the size bound of a DHT record payload. Writes of
// larger payloads are rejected locally before touching the network.
const MaxDHTPayloadSize = 8192

var (
	// ErrRecordNotFound is returned by a DHT get for an unknown key.
	ErrRecordNotFound = errors.New("dht record not found")
	// ErrSequenceConflict is returned by a DHT put whose expected sequence
	// is stale. The caller is expected to re-read, re-merge and retry.
	ErrSequenceConflict = errors.New("dht record sequence conflict")
	// ErrPayloadTooLarge ...
	ErrPayloadTooLarge = errors.New("dht payload exceeds the size bound")
	// ErrPeerUnreachable ...
	ErrPeerUnreachable = errors.New("peer is not reachable")
)

// DHTRecord is a versioned record of the distributed hash table.
type DHTRecord struct {
	Sequence  uint64
	Payload   []byte
	Owner     string
	Signature []byte
}

// DHT is the versioned key-value primitive offered by the P2P substrate.
// Writes are conditional on the expected sequence: concurrent writers are
// resolved by compare-and-swap, never by mutual exclusion.
type DHT interface {
	// Get returns the current record stored under the given key, or
	// ErrRecordNotFound.
	Get(ctx context.Context, key string) (*DHTRecord, error)
	// Put stores the payload under the key only if the record sequence still
	// equals expectedSeq, and returns ErrSequenceConflict otherwise. The new
	// record carries sequence expectedSeq+1.
	Put(
		ctx context.Context,
		key string, expectedSeq uint64, payload, signature []byte,
	) error
}

// MessageHandler is invoked for every routed message delivered to this peer.
type MessageHandler func(sender string, payload []byte)

// Messenger is the routed point-to-point messaging primitive offered by the
// P2P substrate: at-most-once delivery and no ordering guarantee across
// messages. Routes are raw bidirectional byte streams used to tunnel the
// computation engine transport.
type Messenger interface {
	// Send delivers the payload to the given peer.
	Send(ctx context.Context, peer string, payload []byte) error
	// RegisterHandler registers the callback invoked on message arrival.
	RegisterHandler(handler MessageHandler)
	// OpenRoute opens a raw byte stream towards the given peer, scoped by a
	// channel id both ends derive deterministically from the session. The
	// returned stream is owned by the caller and must be closed on every
	// exit path of the session using it.
	OpenRoute(ctx context.Context, peer, channel string) (io.ReadWriteCloser, error)
}
