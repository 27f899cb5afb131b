package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connection is the gateway-owned record for one live subscriber socket. The
// subscription set is loaded once at auth time and never refreshed for the
// lifetime of the connection; durable subscription membership lives in the
// external store.
type connection struct {
	id       string
	userId   string
	channels map[int64]struct{}
	ws       *websocket.Conn

	// writeMu serializes writes so a broadcast and a control frame never
	// interleave on the wire.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *connection) subscribedTo(channelId int64) bool {
	_, ok := c.channels[channelId]
	return ok
}

// send writes one text frame, bounding the write so a slow client cannot
// stall the broadcast loop.
func (c *connection) send(payload []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.ws.Close()
	})
}

// registry holds all live connections. Mutation happens from three paths
// (accept, broadcast eviction, reader teardown); all of them are serialized
// through the single mutex here, and broadcast iterates over a snapshot.
type registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

func newRegistry() *registry {
	return &registry{
		conns: make(map[string]*connection),
	}
}

// Thread-safe
func (r *registry) add(c *connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// remove deletes a connection and reports whether it was present, so that
// the accept, broadcast and reader paths can all call it without
// double-removal errors. Thread-safe.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

// Thread-safe
func (r *registry) snapshot() []*connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Thread-safe
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
