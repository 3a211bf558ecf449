package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/services/node"
)

// runStorageContract exercises the behaviour every handle must share.
func runStorageContract(t *testing.T, s node.Storage) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(ctx, "u1", map[string]any{"name": "Ada", "score": 3}))
	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, float64(3), got["score"])

	require.NoError(t, s.Save(ctx, "u1", map[string]any{"name": "Grace"}))
	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Grace"}, got)

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, s.Log(ctx, "u1", map[string]any{"msg": msg}))
	}

	all, err := s.Logs(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0]["msg"])
	assert.NotEmpty(t, all[0]["timestamp"])

	last, err := s.Logs(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0]["msg"])
	assert.Equal(t, "three", last[1]["msg"])

	none, err := s.Logs(ctx, "u2", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_Contract(t *testing.T) {
	runStorageContract(t, NewMemory())
}

func TestBadger_Contract(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	runStorageContract(t, s)
}

func TestBadger_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "u", map[string]any{"k": "v"}))
	require.NoError(t, s.Close())

	s, err = OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "v", got["k"])
}

func TestBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	require.Error(t, err)
}

func TestRedis_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := NewRedisFromClient(client, WithPrefix("test:"))
	defer s.Close()

	runStorageContract(t, s)
	assert.True(t, mr.Exists("test:data:u1"))
}

func TestCache_SharesHandlePerTypeAndPath(t *testing.T) {
	c := NewCache(nil)
	opened := 0
	c.SetOpener("counting", func(string) (node.Storage, error) {
		opened++
		return NewMemory(), nil
	})

	a, err := c.Open("counting", "p1")
	require.NoError(t, err)
	b, err := c.Open("counting", "p1")
	require.NoError(t, err)
	other, err := c.Open("counting", "p2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, opened)

	require.NoError(t, c.Close())
	_, err = c.Open("counting", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, opened, "closed handles are reopened")
}

func TestCache_Errors(t *testing.T) {
	c := NewCache(nil)

	_, err := c.Open("tape", "x")
	assert.ErrorIs(t, err, node.ErrConfiguration)

	c.SetOpener("broken", func(string) (node.Storage, error) { return nil, errors.New("down") })
	_, err = c.Open("broken", "x")
	assert.ErrorIs(t, err, node.ErrResource)

	assert.Contains(t, c.Types(), TypeBadger)
}

func TestCache_RedisThroughAddress(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewCache(nil)
	defer c.Close()

	h, err := c.Open(TypeRedis, mr.Addr())
	require.NoError(t, err)
	require.NoError(t, h.Save(context.Background(), "u", map[string]any{"ok": true}))
	assert.True(t, mr.Exists("nodeflow:data:u"))
}
