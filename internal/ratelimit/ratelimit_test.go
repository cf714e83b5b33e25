package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectIncr(mock redismock.ClientMock, key string, window time.Duration) *redismock.ExpectedCmd {
	return mock.ExpectEvalSha(incrScript.Hash(), []string{key}, window.Milliseconds())
}

func TestRedisLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	l := NewRedisLimiter(client, 2, time.Minute, zerolog.Nop())

	tests := []struct {
		count int64
		want  bool
	}{
		{1, true},
		{2, true},
		{3, false},
	}
	for _, tt := range tests {
		expectIncr(mock, "ratelimit:send:9", time.Minute).SetVal(tt.count)
		ok, err := l.Allow(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "count %d", tt.count)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

// The expiry travels with every increment, so there is no separate EXPIRE
// call that can fail and leave the counter without a TTL.
func TestRedisLimiter_SingleRoundTripPerSend(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLimiter(client, 5, 30*time.Second, zerolog.Nop())

	expectIncr(mock, "ratelimit:send:4", 30*time.Second).SetVal(int64(1))
	ok, err := l.Allow(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_Error(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLimiter(client, 2, time.Minute, zerolog.Nop())

	expectIncr(mock, "ratelimit:send:9", time.Minute).SetErr(errors.New("connection refused"))
	ok, err := l.Allow(context.Background(), 9)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestUnlimited(t *testing.T) {
	ok, err := Unlimited{}.Allow(context.Background(), 1)
	assert.NoError(t, err)
	assert.True(t, ok)
}
