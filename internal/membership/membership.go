package membership

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/user"
)

const shardCount = 32

// ConversationLister is the store query Rebuild needs.
type ConversationLister interface {
	ConversationIDsFor(ctx context.Context, u user.ID) ([]int64, error)
}

type groupShard struct {
	mu     sync.RWMutex
	groups map[int64]map[presence.Handle]struct{}
}

type handleShard struct {
	mu      sync.Mutex
	handles map[presence.Handle]map[int64]struct{}
}

// Manager tracks which live connections receive events for which
// conversation. Nothing here is durable; a new connection rebuilds its
// memberships from the store.
type Manager struct {
	lister  ConversationLister
	groups  [shardCount]*groupShard
	handles [shardCount]*handleShard
}

func NewManager(lister ConversationLister) *Manager {
	m := &Manager{lister: lister}
	for i := 0; i < shardCount; i++ {
		m.groups[i] = &groupShard{groups: make(map[int64]map[presence.Handle]struct{})}
		m.handles[i] = &handleShard{handles: make(map[presence.Handle]map[int64]struct{})}
	}
	return m
}

func (m *Manager) groupFor(group int64) *groupShard {
	if group < 0 {
		group = -group
	}
	return m.groups[group%shardCount]
}

func (m *Manager) handleFor(h presence.Handle) *handleShard {
	f := fnv.New32a()
	f.Write([]byte(h))
	return m.handles[f.Sum32()%shardCount]
}

// Rebuild attaches h and subscribes it to every conversation u takes
// part in. It returns how many groups it joined.
func (m *Manager) Rebuild(ctx context.Context, h presence.Handle, u user.ID) (int, error) {
	ids, err := m.lister.ConversationIDsFor(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("rebuild memberships for %d: %w", u, err)
	}
	m.Attach(h)
	for _, id := range ids {
		m.Add(id, h)
	}
	return len(ids), nil
}

// Attach marks h as a live connection on this instance. Add ignores
// handles that are not attached, so a join racing DropAll cannot bring a
// closed connection back.
func (m *Manager) Attach(h presence.Handle) {
	hs := m.handleFor(h)
	hs.mu.Lock()
	if _, ok := hs.handles[h]; !ok {
		hs.handles[h] = make(map[int64]struct{})
	}
	hs.mu.Unlock()
}

// Add subscribes an attached handle to group. Lock order is handle shard,
// then group shard.
func (m *Manager) Add(group int64, h presence.Handle) bool {
	hs := m.handleFor(h)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	joined, ok := hs.handles[h]
	if !ok {
		return false
	}
	joined[group] = struct{}{}

	gs := m.groupFor(group)
	gs.mu.Lock()
	members, ok := gs.groups[group]
	if !ok {
		members = make(map[presence.Handle]struct{})
		gs.groups[group] = members
	}
	members[h] = struct{}{}
	gs.mu.Unlock()
	return true
}

func (m *Manager) Remove(group int64, h presence.Handle) {
	hs := m.handleFor(h)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if joined, ok := hs.handles[h]; ok {
		delete(joined, group)
	}
	m.removeFromGroup(group, h)
}

// DropAll detaches h and removes it from every group it joined. Unknown
// handles are a no-op.
func (m *Manager) DropAll(h presence.Handle) {
	hs := m.handleFor(h)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	for group := range hs.handles[h] {
		m.removeFromGroup(group, h)
	}
	delete(hs.handles, h)
}

func (m *Manager) removeFromGroup(group int64, h presence.Handle) {
	gs := m.groupFor(group)
	gs.mu.Lock()
	if members, ok := gs.groups[group]; ok {
		delete(members, h)
		if len(members) == 0 {
			delete(gs.groups, group)
		}
	}
	gs.mu.Unlock()
}

// Members returns a snapshot of the handles subscribed to group.
func (m *Manager) Members(group int64) []presence.Handle {
	gs := m.groupFor(group)
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	out := make([]presence.Handle, 0, len(gs.groups[group]))
	for h := range gs.groups[group] {
		out = append(out, h)
	}
	return out
}

// Groups returns the conversations h is subscribed to, ascending.
func (m *Manager) Groups(h presence.Handle) []int64 {
	hs := m.handleFor(h)
	hs.mu.Lock()
	out := make([]int64, 0, len(hs.handles[h]))
	for g := range hs.handles[h] {
		out = append(out, g)
	}
	hs.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
