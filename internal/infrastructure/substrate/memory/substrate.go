package memorysubstrate

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

// Network is an in-process P2P substrate implementing the DHT and Messenger
// ports for every joined node. It honors the same contracts as the real
// substrate: CAS-on-sequence DHT writes, at-most-once message delivery with
// no ordering guarantee, raw byte-stream routes. Used by tests and by the
// daemon's demo mode.
type Network struct {
	mtx         sync.Mutex
	records     map[string]ports.DHTRecord
	nodes       map[string]*Node
	pendingRtes map[string]chan net.Conn
	partitioned map[string]bool
}

// NewNetwork returns an empty in-process substrate.
func NewNetwork() *Network {
	return &Network{
		records:     map[string]ports.DHTRecord{},
		nodes:       map[string]*Node{},
		pendingRtes: map[string]chan net.Conn{},
		partitioned: map[string]bool{},
	}
}

// Join adds a node to the network under the given identity and returns it.
func (n *Network) Join(identity string) *Node {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	node := &Node{identity: identity, network: n}
	n.nodes[identity] = node
	return node
}

// SetPartitioned simulates a network partition isolating the given identity:
// messages from and towards it fail and its routes cannot be established.
func (n *Network) SetPartitioned(identity string, partitioned bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.partitioned[identity] = partitioned
}

// Node is one peer of the in-process substrate. It implements both the
// ports.DHT and the ports.Messenger interfaces.
type Node struct {
	identity string
	network  *Network

	handlerMtx sync.RWMutex
	handler    ports.MessageHandler
}

var (
	_ ports.DHT       = (*Node)(nil)
	_ ports.Messenger = (*Node)(nil)
)

// Identity returns the identity the node joined the network under.
func (n *Node) Identity() string { return n.identity }

// Get implements the ports.DHT interface.
func (n *Node) Get(ctx context.Context, key string) (*ports.DHTRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.network.mtx.Lock()
	defer n.network.mtx.Unlock()

	record, ok := n.network.records[key]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	copied := record
	copied.Payload = append([]byte(nil), record.Payload...)
	copied.Signature = append([]byte(nil), record.Signature...)
	return &copied, nil
}

// Put implements the ports.DHT interface with compare-and-swap semantics:
// exactly one writer wins every sequence step, every other one is told to
// retry with ErrSequenceConflict.
func (n *Node) Put(
	ctx context.Context, key string, expectedSeq uint64, payload, signature []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payload) > ports.MaxDHTPayloadSize {
		return ports.ErrPayloadTooLarge
	}

	n.network.mtx.Lock()
	defer n.network.mtx.Unlock()

	current, exists := n.network.records[key]
	if exists && current.Sequence != expectedSeq {
		return ports.ErrSequenceConflict
	}
	if !exists && expectedSeq != 0 {
		return ports.ErrSequenceConflict
	}

	n.network.records[key] = ports.DHTRecord{
		Sequence:  expectedSeq + 1,
		Payload:   append([]byte(nil), payload...),
		Owner:     n.identity,
		Signature: append([]byte(nil), signature...),
	}
	return nil
}

// Send implements the ports.Messenger interface.
func (n *Node) Send(ctx context.Context, peer string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.network.mtx.Lock()
	target, ok := n.network.nodes[peer]
	unreachable := !ok ||
		n.network.partitioned[peer] || n.network.partitioned[n.identity]
	n.network.mtx.Unlock()

	if unreachable {
		return ports.ErrPeerUnreachable
	}

	sender := n.identity
	copied := append([]byte(nil), payload...)
	go target.deliver(sender, copied)
	return nil
}

// RegisterHandler implements the ports.Messenger interface.
func (n *Node) RegisterHandler(handler ports.MessageHandler) {
	n.handlerMtx.Lock()
	defer n.handlerMtx.Unlock()
	n.handler = handler
}

func (n *Node) deliver(sender string, payload []byte) {
	n.handlerMtx.RLock()
	handler := n.handler
	n.handlerMtx.RUnlock()
	if handler != nil {
		handler(sender, payload)
	}
}

// OpenRoute implements the ports.Messenger interface. Both route ends call
// OpenRoute with the same channel id; the first caller parks until the
// second one arrives, then the two are joined by an in-memory pipe.
func (n *Node) OpenRoute(
	ctx context.Context, peer, channel string,
) (io.ReadWriteCloser, error) {
	n.network.mtx.Lock()
	if n.network.partitioned[peer] || n.network.partitioned[n.identity] {
		n.network.mtx.Unlock()
		return nil, ports.ErrPeerUnreachable
	}

	key := routeKey(n.identity, peer, channel)
	if waiting, ok := n.network.pendingRtes[key]; ok {
		delete(n.network.pendingRtes, key)
		n.network.mtx.Unlock()

		local, remote := net.Pipe()
		select {
		case waiting <- remote:
			return local, nil
		case <-ctx.Done():
			local.Close()
			remote.Close()
			return nil, ctx.Err()
		}
	}

	waiting := make(chan net.Conn)
	n.network.pendingRtes[key] = waiting
	n.network.mtx.Unlock()

	select {
	case conn := <-waiting:
		return conn, nil
	case <-ctx.Done():
		n.network.mtx.Lock()
		delete(n.network.pendingRtes, key)
		n.network.mtx.Unlock()
		return nil, ctx.Err()
	}
}

// RecordCount returns the number of records currently stored in the DHT.
func (n *Network) RecordCount() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.records)
}

// PendingRouteCount returns the number of half-open routes still waiting for
// their remote end, useful to assert resource baselines in tests.
func (n *Network) PendingRouteCount() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.pendingRtes)
}

func routeKey(a, b, channel string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("%s|%s|%s", pair[0], pair[1], channel)
}
