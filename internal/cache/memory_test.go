package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	c := NewMemory("test", 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", 0))
	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestMemoryGetMissing(t *testing.T) {
	c := NewMemory("", 0)
	_, err := c.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMemoryDelete(t *testing.T) {
	c := NewMemory("", 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", 0))
	require.NoError(t, c.Delete(ctx, "k1"))
	_, err := c.Get(ctx, "k1")
	assert.True(t, IsNotFound(err))
}

func TestMemoryTTLExpires(t *testing.T) {
	c := NewMemory("", 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, err := c.Get(ctx, "k1")
	assert.True(t, IsNotFound(err))
}

func TestMemoryPrefixIsolation(t *testing.T) {
	a := NewMemory("a", 0)
	b := NewMemory("b", 0)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", "from-a", 0))
	_, err := b.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
}

func TestNewDefaultsToMemory(t *testing.T) {
	c, err := New(Config{Driver: ""})
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))
}
