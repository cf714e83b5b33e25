package membership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/user"
)

type MockLister struct {
	mock.Mock
}

func (m *MockLister) ConversationIDsFor(ctx context.Context, u user.ID) ([]int64, error) {
	args := m.Called(ctx, u)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func TestManager_Rebuild(t *testing.T) {
	lister := new(MockLister)
	lister.On("ConversationIDsFor", mock.Anything, user.ID(1)).Return([]int64{3, 1, 2}, nil)

	m := NewManager(lister)
	n, err := m.Rebuild(context.Background(), "h1", 1)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, m.Groups("h1"))
	for _, g := range []int64{1, 2, 3} {
		assert.Equal(t, []presence.Handle{"h1"}, m.Members(g))
	}
	lister.AssertExpectations(t)
}

func TestManager_RebuildError(t *testing.T) {
	lister := new(MockLister)
	lister.On("ConversationIDsFor", mock.Anything, user.ID(1)).Return(nil, errors.New("db down"))

	m := NewManager(lister)
	_, err := m.Rebuild(context.Background(), "h1", 1)
	assert.Error(t, err)
	assert.Empty(t, m.Groups("h1"))
}

func TestManager_AddRemoveIdempotent(t *testing.T) {
	m := NewManager(new(MockLister))
	m.Attach("a")
	m.Attach("b")

	assert.True(t, m.Add(10, "a"))
	assert.True(t, m.Add(10, "a"))
	m.Add(10, "b")
	assert.ElementsMatch(t, []presence.Handle{"a", "b"}, m.Members(10))

	m.Remove(10, "a")
	m.Remove(10, "a")
	assert.Equal(t, []presence.Handle{"b"}, m.Members(10))
	assert.Empty(t, m.Groups("a"))

	// Leaving the last group keeps the handle attached.
	assert.True(t, m.Add(11, "a"))
	assert.Equal(t, []int64{11}, m.Groups("a"))
}

func TestManager_DropAll(t *testing.T) {
	m := NewManager(new(MockLister))
	m.Attach("a")
	m.Attach("b")

	m.Add(1, "a")
	m.Add(2, "a")
	m.Add(2, "b")

	m.DropAll("a")
	m.DropAll("unknown")

	assert.Empty(t, m.Members(1))
	assert.Equal(t, []presence.Handle{"b"}, m.Members(2))
	assert.Empty(t, m.Groups("a"))
}

func TestManager_Concurrent(t *testing.T) {
	m := NewManager(new(MockLister))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := presence.NewHandle()
			m.Attach(h)
			for g := int64(0); g < 20; g++ {
				m.Add(g, h)
			}
			_ = m.Members(int64(i % 20))
			m.DropAll(h)
		}(i)
	}
	wg.Wait()

	for g := int64(0); g < 20; g++ {
		assert.Empty(t, m.Members(g))
	}
}

func TestManager_AddIgnoresUnattachedHandle(t *testing.T) {
	m := NewManager(new(MockLister))

	assert.False(t, m.Add(1, "never-attached"))
	assert.Empty(t, m.Members(1))

	m.Attach("h")
	require.True(t, m.Add(1, "h"))
	m.DropAll("h")

	// A join that lands after the connection closed is discarded.
	assert.False(t, m.Add(2, "h"))
	assert.Empty(t, m.Members(1))
	assert.Empty(t, m.Members(2))
	assert.Empty(t, m.Groups("h"))
}

func TestManager_JoinRacingDropAll(t *testing.T) {
	m := NewManager(new(MockLister))

	for i := 0; i < 200; i++ {
		h := presence.NewHandle()
		m.Attach(h)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Add(int64(i%8), h)
		}()
		go func() {
			defer wg.Done()
			m.DropAll(h)
		}()
		wg.Wait()

		assert.NotContains(t, m.Members(int64(i%8)), h)
		assert.Empty(t, m.Groups(h))
	}
}
