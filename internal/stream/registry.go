// Package stream provides the live connection registry and the real-time
// event fan-out hub.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tradeedge/internal/models"
)

// Conn is the transport contract the core requires from one bidirectional
// client channel: an identity and a bounded send. The wire protocol behind
// it is an implementation choice.
type Conn interface {
	ID() string
	UserID() int64
	EstablishedAt() time.Time
	Send(ctx context.Context, msg models.DeliveredMessage) error
	Close() error
}

// registryShards spreads user buckets over independent locks so unrelated
// users' connection churn never serializes.
const registryShards = 32

// Registry tracks live client connections keyed by user identity. Many
// connections may map to one user (multiple devices/tabs).
type Registry struct {
	shards [registryShards]registryShard
	// index routes a connection ID back to its user for unregistering.
	index sync.Map // connection ID -> int64 user ID
	count int64
}

type registryShard struct {
	mu     sync.RWMutex
	byUser map[int64]map[string]Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].byUser = make(map[int64]map[string]Conn)
	}
	return r
}

func (r *Registry) shardFor(userID int64) *registryShard {
	return &r.shards[uint64(userID)%registryShards]
}

// Register adds a live connection. Registering an ID that is already
// present replaces the old connection.
func (r *Registry) Register(conn Conn) {
	userID := conn.UserID()
	shard := r.shardFor(userID)

	shard.mu.Lock()
	conns, ok := shard.byUser[userID]
	if !ok {
		conns = make(map[string]Conn)
		shard.byUser[userID] = conns
	}
	if _, replaced := conns[conn.ID()]; !replaced {
		atomic.AddInt64(&r.count, 1)
	}
	conns[conn.ID()] = conn
	shard.mu.Unlock()

	r.index.Store(conn.ID(), userID)
}

// Unregister removes a connection by ID. It is idempotent: unregistering
// twice, or a connection never registered, is a no-op. Once it returns, the
// connection is no longer visible to ConnectionsFor, so no further dispatch
// reaches it.
func (r *Registry) Unregister(connectionID string) {
	value, ok := r.index.LoadAndDelete(connectionID)
	if !ok {
		return
	}
	userID := value.(int64)
	shard := r.shardFor(userID)

	shard.mu.Lock()
	if conns, ok := shard.byUser[userID]; ok {
		if _, present := conns[connectionID]; present {
			delete(conns, connectionID)
			atomic.AddInt64(&r.count, -1)
		}
		if len(conns) == 0 {
			delete(shard.byUser, userID)
		}
	}
	shard.mu.Unlock()
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID int64) []Conn {
	shard := r.shardFor(userID)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	conns := shard.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of live connections across all users.
func (r *Registry) Count() int {
	return int(atomic.LoadInt64(&r.count))
}

// UserCount returns the number of users with at least one live connection.
func (r *Registry) UserCount() int {
	total := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		total += len(shard.byUser)
		shard.mu.RUnlock()
	}
	return total
}

// CloseAll unregisters and closes every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for userID, conns := range shard.byUser {
			for id, conn := range conns {
				r.index.Delete(id)
				conn.Close()
				atomic.AddInt64(&r.count, -1)
			}
			delete(shard.byUser, userID)
		}
		shard.mu.Unlock()
	}
}
