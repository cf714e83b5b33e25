package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLocal(ttl time.Duration) (*LocalRegistry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewLocalRegistry(ttl, zerolog.Nop())
	r.now = clock.Now
	return r, clock
}

func TestLocalRegistry_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	r, _ := newLocal(time.Hour)

	require.NoError(t, r.Set(ctx, 1, "h1"))
	require.NoError(t, r.Set(ctx, 1, "h2"))

	h, ok, err := r.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Handle("h2"), h)
}

func TestLocalRegistry_Clear(t *testing.T) {
	ctx := context.Background()
	r, _ := newLocal(time.Hour)

	require.NoError(t, r.Set(ctx, 1, "h1"))
	require.NoError(t, r.Clear(ctx, 1))
	require.NoError(t, r.Clear(ctx, 1))

	_, ok, err := r.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalRegistry_ClearIfKeepsNewerHandle(t *testing.T) {
	ctx := context.Background()
	r, _ := newLocal(time.Hour)

	require.NoError(t, r.Set(ctx, 1, "old"))
	require.NoError(t, r.Set(ctx, 1, "new"))
	require.NoError(t, r.ClearIf(ctx, 1, "old"))

	h, ok, _ := r.Get(ctx, 1)
	assert.True(t, ok)
	assert.Equal(t, Handle("new"), h)

	require.NoError(t, r.ClearIf(ctx, 1, "new"))
	_, ok, _ = r.Get(ctx, 1)
	assert.False(t, ok)
}

func TestLocalRegistry_Expiry(t *testing.T) {
	ctx := context.Background()
	r, clock := newLocal(time.Minute)

	require.NoError(t, r.Set(ctx, 7, "h"))
	clock.Advance(59 * time.Second)
	_, ok, _ := r.Get(ctx, 7)
	assert.True(t, ok)

	// Re-setting the same handle refreshes the TTL.
	require.NoError(t, r.Set(ctx, 7, "h"))
	clock.Advance(59 * time.Second)
	_, ok, _ = r.Get(ctx, 7)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = r.Get(ctx, 7)
	assert.False(t, ok)

	assert.Equal(t, 1, r.sweep())
	assert.Equal(t, 0, r.sweep())
}

func TestLocalRegistry_Concurrent(t *testing.T) {
	ctx := context.Background()
	r, _ := newLocal(time.Hour)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(id user.ID) {
			defer wg.Done()
			h := NewHandle()
			assert.NoError(t, r.Set(ctx, id, h))
			got, ok, err := r.Get(ctx, id)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, h, got)
			assert.NoError(t, r.ClearIf(ctx, id, h))
		}(user.ID(i))
	}
	wg.Wait()

	for i := 1; i <= 100; i++ {
		_, ok, _ := r.Get(ctx, user.ID(i))
		assert.False(t, ok)
	}
}

func TestLocalRegistry_RunStopsOnCancel(t *testing.T) {
	r, _ := newLocal(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRedisRegistry(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	r := NewRedisRegistry(client, 24*time.Hour)

	t.Run("set", func(t *testing.T) {
		mock.ExpectSet("presence:user:5", "h1", 24*time.Hour).SetVal("OK")
		require.NoError(t, r.Set(ctx, 5, "h1"))
	})

	t.Run("get present", func(t *testing.T) {
		mock.ExpectGet("presence:user:5").SetVal("h1")
		h, ok, err := r.Get(ctx, 5)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Handle("h1"), h)
	})

	t.Run("get absent", func(t *testing.T) {
		mock.ExpectGet("presence:user:6").RedisNil()
		_, ok, err := r.Get(ctx, 6)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("get error", func(t *testing.T) {
		mock.ExpectGet("presence:user:6").SetErr(errors.New("connection refused"))
		_, _, err := r.Get(ctx, 6)
		assert.Error(t, err)
	})

	t.Run("clear", func(t *testing.T) {
		mock.ExpectDel("presence:user:5").SetVal(1)
		require.NoError(t, r.Clear(ctx, 5))
	})

	t.Run("clear if", func(t *testing.T) {
		mock.ExpectEvalSha(clearIfScript.Hash(), []string{"presence:user:5"}, "h1").SetVal(int64(0))
		require.NoError(t, r.ClearIf(ctx, 5, "h1"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
