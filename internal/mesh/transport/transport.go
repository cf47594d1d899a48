// Package transport defines the peer transport abstraction consumed,
// not specified, by design note §6: a bidirectional named-peer channel. The
// gossip engine is agnostic to how peers are discovered or
// authenticated; this package also carries the wire codec for price
// updates.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
)

// PeerTransport is the external collaborator interface from design note §6.
type PeerTransport interface {
	// Send delivers bytes to the named peer.
	Send(ctx context.Context, peerID string, payload []byte) error

	// ConnectedPeers returns a snapshot of currently-connected peer IDs.
	ConnectedPeers() []string

	// Inbound returns a channel of messages received from peers. Closed
	// when the transport shuts down.
	Inbound() <-chan InboundMessage

	// Disconnects returns a channel of peer IDs as they disconnect.
	// Closed when the transport shuts down.
	Disconnects() <-chan string

	// Close releases transport resources.
	Close() error
}

// InboundMessage pairs a received payload with the peer it arrived
// from.
type InboundMessage struct {
	PeerID  string
	Payload []byte
}

// wireUpdate mirrors design note §6's self-describing wire record exactly:
// message_id, source_node_id, timestamp (RFC 3339 UTC), prices, ttl.
type wireUpdate struct {
	MessageID    string                      `json:"message_id"`
	SourceNodeID string                      `json:"source_node_id"`
	Timestamp    string                      `json:"timestamp"`
	Prices       map[string]meshtypes.Quote  `json:"prices"`
	TTL          uint8                       `json:"ttl"`
}

// EncodeUpdate marshals a PriceUpdate into the wire format from §6.
func EncodeUpdate(update meshtypes.PriceUpdate) ([]byte, error) {
	w := wireUpdate{
		MessageID:    update.MessageID.String(),
		SourceNodeID: update.SourceNodeID.String(),
		Timestamp:    update.IssuedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Prices:       update.Quotes,
		TTL:          update.TTL,
	}
	return json.Marshal(w)
}

// DecodeUpdate unmarshals the wire format from §6 into a PriceUpdate.
func DecodeUpdate(payload []byte) (meshtypes.PriceUpdate, error) {
	var w wireUpdate
	if err := json.Unmarshal(payload, &w); err != nil {
		return meshtypes.PriceUpdate{}, fmt.Errorf("transport: failed to decode wire update: %w", err)
	}

	messageID, err := parseID16(w.MessageID)
	if err != nil {
		return meshtypes.PriceUpdate{}, fmt.Errorf("transport: invalid message_id: %w", err)
	}
	sourceID, err := parseID16(w.SourceNodeID)
	if err != nil {
		return meshtypes.PriceUpdate{}, fmt.Errorf("transport: invalid source_node_id: %w", err)
	}

	issuedAt, err := parseRFC3339(w.Timestamp)
	if err != nil {
		return meshtypes.PriceUpdate{}, fmt.Errorf("transport: invalid timestamp: %w", err)
	}

	return meshtypes.PriceUpdate{
		MessageID:    meshtypes.MessageID(messageID),
		SourceNodeID: meshtypes.NodeID(sourceID),
		IssuedAt:     issuedAt,
		TTL:          w.TTL,
		Quotes:       w.Prices,
	}, nil
}
