package transport

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process PeerTransport that wires multiple mesh
// instances together by direct channel sends, for tests and local
// multi-node simulation (design note §9 notes tests spin up multiple
// orchestrators in one process).
type Memory struct {
	mu    sync.RWMutex
	peers map[string]*Memory

	selfID      string
	inbound     chan InboundMessage
	disconnects chan string
	closed      bool
}

// NewMemoryHub creates a set of interconnected Memory transports, one
// per peerID given.
func NewMemoryHub(peerIDs ...string) map[string]*Memory {
	hub := make(map[string]*Memory, len(peerIDs))
	for _, id := range peerIDs {
		hub[id] = &Memory{
			selfID:      id,
			peers:       make(map[string]*Memory),
			inbound:     make(chan InboundMessage, 256),
			disconnects: make(chan string, 16),
		}
	}
	for id, m := range hub {
		for otherID, other := range hub {
			if otherID == id {
				continue
			}
			m.peers[otherID] = other
		}
	}
	return hub
}

func (m *Memory) Send(_ context.Context, peerID string, payload []byte) error {
	m.mu.RLock()
	peer, ok := m.peers[peerID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", peerID)
	}

	select {
	case peer.inbound <- InboundMessage{PeerID: m.selfID, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("transport: peer %q inbound buffer full", peerID)
	}
}

func (m *Memory) ConnectedPeers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	return ids
}

func (m *Memory) Inbound() <-chan InboundMessage { return m.inbound }
func (m *Memory) Disconnects() <-chan string     { return m.disconnects }

// Disconnect removes peerID from this transport's connected set and
// emits a disconnect event, simulating a proximity link drop.
func (m *Memory) Disconnect(peerID string) {
	m.mu.Lock()
	delete(m.peers, peerID)
	m.mu.Unlock()
	select {
	case m.disconnects <- peerID:
	default:
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.inbound)
	close(m.disconnects)
	return nil
}
