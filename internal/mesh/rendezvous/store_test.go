package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemory_GetMissOnExpiredTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("first"), time.Minute))
	require.NoError(t, m.Set(ctx, "k", []byte("second"), time.Minute))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), val)
}

func TestMemory_SetNXRefusesWhenLive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	written, err := m.SetNX(ctx, "k", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = m.SetNX(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, written)

	val, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("first"), val)
}

func TestMemory_SetNXSucceedsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SetNX(ctx, "k", []byte("first"), 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	written, err := m.SetNX(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.True(t, written)
}
