// Package ws implements a WebSocket-backed PeerTransport, one
// connection per mesh peer, framed the same way and with the same
// exponential-backoff reconnect discipline as arcsign's
// src/chainadapter/rpc/websocket.go, adapted from JSON-RPC call/response
// framing to fire-and-forget gossip message relay.
package ws

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/transport"
)

const (
	initialReconnectBackoff = 1 * time.Second
	maxReconnectBackoff     = 60 * time.Second
)

// peerConn tracks one outbound WebSocket connection to a single mesh
// peer, with its own reconnect loop.
type peerConn struct {
	peerID string
	url    string

	mu      sync.Mutex
	conn    *websocket.Conn
	backoff time.Duration

	reconnecting atomic.Bool
	closed       atomic.Bool

	log *zap.Logger
}

// Transport is a WebSocket-backed PeerTransport: every configured peer
// URL gets its own auto-reconnecting connection, and all inbound
// frames are merged onto a single Inbound() channel.
type Transport struct {
	mu    sync.RWMutex
	peers map[string]*peerConn

	inbound     chan transport.InboundMessage
	disconnects chan string

	log *zap.Logger
}

// New dials every peer in peerURLs (keyed by peer ID) and returns a
// Transport that keeps each connection alive with exponential backoff.
func New(ctx context.Context, peerURLs map[string]string, log *zap.Logger) (*Transport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transport{
		peers:       make(map[string]*peerConn, len(peerURLs)),
		inbound:     make(chan transport.InboundMessage, 256),
		disconnects: make(chan string, 16),
		log:         log,
	}

	for peerID, url := range peerURLs {
		pc := &peerConn{peerID: peerID, url: url, backoff: initialReconnectBackoff, log: log}
		t.peers[peerID] = pc
		go t.maintainConnection(ctx, pc)
	}

	return t, nil
}

func (t *Transport) maintainConnection(ctx context.Context, pc *peerConn) {
	for {
		if pc.closed.Load() {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, pc.url, nil)
		if err != nil {
			t.log.Warn("peer dial failed, backing off", zap.String("peer_id", pc.peerID), zap.Error(err))
			if !t.backoffAndRetry(ctx, pc) {
				return
			}
			continue
		}

		pc.mu.Lock()
		pc.conn = conn
		pc.backoff = initialReconnectBackoff
		pc.mu.Unlock()

		t.readLoop(ctx, pc, conn)

		pc.mu.Lock()
		if pc.conn == conn {
			pc.conn = nil
		}
		pc.mu.Unlock()

		select {
		case t.disconnects <- pc.peerID:
		default:
		}

		if pc.closed.Load() {
			return
		}
		if !t.backoffAndRetry(ctx, pc) {
			return
		}
	}
}

func (t *Transport) backoffAndRetry(ctx context.Context, pc *peerConn) bool {
	if !pc.reconnecting.CompareAndSwap(false, true) {
		return true
	}
	defer pc.reconnecting.Store(false)

	pc.mu.Lock()
	backoff := pc.backoff
	pc.mu.Unlock()

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	next := backoff * 2
	if next > maxReconnectBackoff {
		next = maxReconnectBackoff
	}
	pc.mu.Lock()
	pc.backoff = next
	pc.mu.Unlock()

	return true
}

func (t *Transport) readLoop(ctx context.Context, pc *peerConn, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		select {
		case t.inbound <- transport.InboundMessage{PeerID: pc.peerID, Payload: payload}:
		case <-ctx.Done():
			return
		default:
			t.log.Warn("dropping inbound frame, buffer full", zap.String("peer_id", pc.peerID))
		}
	}
}

// Send implements transport.PeerTransport.
func (t *Transport) Send(_ context.Context, peerID string, payload []byte) error {
	t.mu.RLock()
	pc, ok := t.peers[peerID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ws transport: unknown peer %q", peerID)
	}

	pc.mu.Lock()
	conn := pc.conn
	pc.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ws transport: peer %q not connected", peerID)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// ConnectedPeers implements transport.PeerTransport.
func (t *Transport) ConnectedPeers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.peers))
	for id, pc := range t.peers {
		pc.mu.Lock()
		connected := pc.conn != nil
		pc.mu.Unlock()
		if connected {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *Transport) Inbound() <-chan transport.InboundMessage { return t.inbound }
func (t *Transport) Disconnects() <-chan string                { return t.disconnects }

// Close shuts down every peer connection.
func (t *Transport) Close() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, pc := range t.peers {
		pc.closed.Store(true)
		pc.mu.Lock()
		if pc.conn != nil {
			pc.conn.Close()
		}
		pc.mu.Unlock()
	}
	return nil
}
