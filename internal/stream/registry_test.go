package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tradeedge/internal/errors"
	"tradeedge/internal/models"
)

// fakeConn is an in-memory Conn that records deliveries.
type fakeConn struct {
	id          string
	userID      int64
	established time.Time

	mu       sync.Mutex
	received []models.DeliveredMessage
	sendErr  error
	closed   bool
}

func newFakeConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID, established: time.Now()}
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) UserID() int64            { return c.userID }
func (c *fakeConn) EstablishedAt() time.Time { return c.established }

func (c *fakeConn) Send(ctx context.Context, msg models.DeliveredMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.received = append(c.received, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []models.DeliveredMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DeliveredMessage, len(c.received))
	copy(out, c.received)
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	c1 := newFakeConn("c1", 10)
	c2 := newFakeConn("c2", 10)
	c3 := newFakeConn("c3", 20)
	registry.Register(c1)
	registry.Register(c2)
	registry.Register(c3)

	if got := registry.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if got := registry.UserCount(); got != 2 {
		t.Errorf("UserCount() = %d, want 2", got)
	}
	if got := len(registry.ConnectionsFor(10)); got != 2 {
		t.Errorf("ConnectionsFor(10) = %d conns, want 2", got)
	}
	if got := registry.ConnectionsFor(99); got != nil {
		t.Errorf("ConnectionsFor(99) = %v, want nil", got)
	}
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn("c1", 10)
	registry.Register(conn)

	registry.Unregister("c1")
	registry.Unregister("c1")
	registry.Unregister("never-registered")

	if got := registry.Count(); got != 0 {
		t.Errorf("Count() = %d after double unregister, want 0", got)
	}
	if registry.ConnectionsFor(10) != nil {
		t.Error("unregistered connection still visible")
	}
}

func TestRegistryReplaceSameID(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newFakeConn("c1", 10))
	registry.Register(newFakeConn("c1", 10))

	if got := registry.Count(); got != 1 {
		t.Errorf("Count() = %d after re-register, want 1", got)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry()
	conns := []*fakeConn{newFakeConn("a", 1), newFakeConn("b", 2), newFakeConn("c", 33)}
	for _, c := range conns {
		registry.Register(c)
	}

	registry.CloseAll()

	if registry.Count() != 0 || registry.UserCount() != 0 {
		t.Error("CloseAll left live connections behind")
	}
	for _, c := range conns {
		if !c.isClosed() {
			t.Errorf("connection %s not closed", c.id)
		}
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for worker := 0; worker < 16; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				userID := int64(worker % 5)
				id := fmt.Sprintf("w%d-c%d", worker, i)
				registry.Register(newFakeConn(id, userID))
				registry.ConnectionsFor(userID)
				registry.Unregister(id)
			}
		}(worker)
	}
	wg.Wait()

	if got := registry.Count(); got != 0 {
		t.Errorf("Count() = %d after balanced churn, want 0", got)
	}
}
