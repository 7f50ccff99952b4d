package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCache_ExpiresOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := newTTLCache[int](10*time.Second, clock.Now)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("k")
	require.False(t, ok)

	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)

	clock.Advance(9 * time.Second)
	_, ok = c.Get("k")
	require.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestTTLCache_LastWriterWins(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c, err := newTTLCache[string](0, clock.Now)
	require.NoError(t, err)
	defer c.Close()

	c.Set("k", "a")
	c.Set("k", "b")
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "b", v)
}
