package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
)

func TestEncodeDecodeUpdate_RoundTrip(t *testing.T) {
	change := "1.23"
	update := meshtypes.PriceUpdate{
		MessageID:    meshtypes.MessageID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SourceNodeID: meshtypes.NodeID{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00},
		IssuedAt:     time.Now().UTC().Truncate(time.Millisecond),
		TTL:          7,
		Quotes: map[string]meshtypes.Quote{
			"SOL": {AssetSymbol: "SOL", Price: "100.5", Blockchain: "solana", Change24h: &change},
		},
	}

	payload, err := EncodeUpdate(update)
	require.NoError(t, err)

	decoded, err := DecodeUpdate(payload)
	require.NoError(t, err)

	assert.Equal(t, update.MessageID, decoded.MessageID)
	assert.Equal(t, update.SourceNodeID, decoded.SourceNodeID)
	assert.True(t, update.IssuedAt.Equal(decoded.IssuedAt))
	assert.Equal(t, update.TTL, decoded.TTL)
	assert.Equal(t, update.Quotes["SOL"].Price, decoded.Quotes["SOL"].Price)
	assert.Equal(t, *update.Quotes["SOL"].Change24h, *decoded.Quotes["SOL"].Change24h)
}

func TestDecodeUpdate_RejectsMalformedPayload(t *testing.T) {
	_, err := DecodeUpdate([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemoryTransport_SendAndReceive(t *testing.T) {
	hub := NewMemoryHub("a", "b")
	a, b := hub["a"], hub["b"]

	require.NoError(t, a.Send(nil, "b", []byte("hello")))

	select {
	case msg := <-b.Inbound():
		assert.Equal(t, "a", msg.PeerID)
		assert.Equal(t, []byte("hello"), msg.Payload)
	default:
		t.Fatal("expected message on b's inbound channel")
	}
}

func TestMemoryTransport_Disconnect(t *testing.T) {
	hub := NewMemoryHub("a", "b")
	a := hub["a"]

	a.Disconnect("b")
	assert.NotContains(t, a.ConnectedPeers(), "b")

	select {
	case peerID := <-a.Disconnects():
		assert.Equal(t, "b", peerID)
	default:
		t.Fatal("expected a disconnect event")
	}
}
