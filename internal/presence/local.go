package presence

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

const shardCount = 32

type entry struct {
	handle    Handle
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[user.ID]entry
}

// LocalRegistry keeps presence in process memory. Expired entries are
// invisible to Get and are reclaimed by Run.
type LocalRegistry struct {
	shards [shardCount]*shard
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewLocalRegistry(ttl time.Duration, log zerolog.Logger) *LocalRegistry {
	r := &LocalRegistry{ttl: ttl, now: time.Now, log: log}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[user.ID]entry)}
	}
	return r
}

func (r *LocalRegistry) shardFor(u user.ID) *shard {
	h := fnv.New32a()
	h.Write([]byte(strconv.Itoa(int(u))))
	return r.shards[h.Sum32()%shardCount]
}

func (r *LocalRegistry) Set(_ context.Context, u user.ID, h Handle) error {
	s := r.shardFor(u)
	s.mu.Lock()
	s.entries[u] = entry{handle: h, expiresAt: r.now().Add(r.ttl)}
	s.mu.Unlock()
	return nil
}

func (r *LocalRegistry) Get(_ context.Context, u user.ID) (Handle, bool, error) {
	s := r.shardFor(u)
	s.mu.RLock()
	e, ok := s.entries[u]
	s.mu.RUnlock()

	if !ok || !r.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.handle, true, nil
}

func (r *LocalRegistry) Clear(_ context.Context, u user.ID) error {
	s := r.shardFor(u)
	s.mu.Lock()
	delete(s.entries, u)
	s.mu.Unlock()
	return nil
}

func (r *LocalRegistry) ClearIf(_ context.Context, u user.ID, h Handle) error {
	s := r.shardFor(u)
	s.mu.Lock()
	if e, ok := s.entries[u]; ok && e.handle == h {
		delete(s.entries, u)
	}
	s.mu.Unlock()
	return nil
}

// Run sweeps expired entries every interval until ctx is done.
func (r *LocalRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				r.log.Debug().Int("expired", n).Msg("presence sweep")
			}
		}
	}
}

func (r *LocalRegistry) sweep() int {
	now := r.now()
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for u, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, u)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
