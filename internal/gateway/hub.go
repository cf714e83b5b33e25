package gateway

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/codeWithGodstime/meetmesh/internal/presence"
)

const hubShards = 32

var (
	errNotRegistered  = errors.New("connection not registered")
	errSendBufferFull = errors.New("send buffer full")
)

type hubShard struct {
	mu      sync.RWMutex
	clients map[presence.Handle]*Client
}

// Hub is the directory of connections owned by this instance.
type Hub struct {
	shards [hubShards]*hubShard
}

func NewHub() *Hub {
	h := &Hub{}
	for i := range h.shards {
		h.shards[i] = &hubShard{clients: make(map[presence.Handle]*Client)}
	}
	return h
}

func (h *Hub) shardFor(handle presence.Handle) *hubShard {
	f := fnv.New32a()
	f.Write([]byte(handle))
	return h.shards[f.Sum32()%hubShards]
}

func (h *Hub) Register(c *Client) {
	s := h.shardFor(c.handle)
	s.mu.Lock()
	s.clients[c.handle] = c
	s.mu.Unlock()
}

// Unregister removes c and closes its send queue, which stops the write
// pump. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	s := h.shardFor(c.handle)
	s.mu.Lock()
	if cur, ok := s.clients[c.handle]; ok && cur == c {
		delete(s.clients, c.handle)
		close(c.send)
	}
	s.mu.Unlock()
}

func (h *Hub) Has(handle presence.Handle) bool {
	s := h.shardFor(handle)
	s.mu.RLock()
	_, ok := s.clients[handle]
	s.mu.RUnlock()
	return ok
}

// Deliver queues payload for handle without blocking.
func (h *Hub) Deliver(handle presence.Handle, payload []byte) error {
	s := h.shardFor(handle)
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[handle]
	if !ok {
		return errNotRegistered
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (h *Hub) Count() int {
	n := 0
	for _, s := range h.shards {
		s.mu.RLock()
		n += len(s.clients)
		s.mu.RUnlock()
	}
	return n
}

// CloseAll sends a going-away close frame to every registered connection
// and closes it. Each connection's own cleanup then runs from its read
// loop.
func (h *Hub) CloseAll() int {
	var clients []*Client
	for _, s := range h.shards {
		s.mu.RLock()
		for _, c := range s.clients {
			clients = append(clients, c)
		}
		s.mu.RUnlock()
	}

	for _, c := range clients {
		c.closeConn(websocket.CloseGoingAway, "server shutting down")
	}
	return len(clients)
}
