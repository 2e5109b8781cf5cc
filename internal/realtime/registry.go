// Package realtime pushes order events to connected clients. Clients hold a
// persistent connection, authenticate once at handshake, and join one room
// per order they want to follow. Order services publish through the
// Dispatcher, which fans each event out to the room's current members.
package realtime

import (
	"context"
	"hash/maphash"
	"sync"

	"github.com/samber/lo"

	"github.com/dropcart/backend/internal/models"
)

const shardCount = 32

// Authorizer decides whether an identity may observe an order's room.
type Authorizer interface {
	Authorize(ctx context.Context, identity models.Identity, orderID string) error
}

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

// Registry maps order ids to the connections joined to them. It is the only
// shared mutable state in the package; every read and write of a room goes
// through its methods.
//
// Rooms are spread over fixed shards by order id so unrelated orders do not
// contend. All mutations of one room, and the Members snapshot of it, happen
// under that room's shard lock, so they are linearizable per room. A room is
// created by the first Join and deleted by the Leave that empties it, both
// under the same lock, so a Join can never land in a room that is being
// removed.
type Registry struct {
	authz  Authorizer
	seed   maphash.Seed
	shards [shardCount]*shard
}

// NewRegistry creates an empty registry whose Join consults authz.
func NewRegistry(authz Authorizer) *Registry {
	r := &Registry{
		authz: authz,
		seed:  maphash.MakeSeed(),
	}
	for i := range r.shards {
		r.shards[i] = &shard{rooms: make(map[string]map[*Conn]struct{})}
	}
	return r
}

func (r *Registry) shardFor(orderID string) *shard {
	return r.shards[maphash.String(r.seed, orderID)%shardCount]
}

// Join adds c to the room for orderID after the Authorizer allows it.
// Joining a room c already belongs to succeeds without another lookup.
// Returns ErrInvalidOrderID, ErrDenied, an *InfrastructureError, or
// ErrConnClosed if c started closing.
func (r *Registry) Join(ctx context.Context, c *Conn, orderID string) error {
	if orderID == "" {
		return ErrInvalidOrderID
	}
	if c.isMember(orderID) {
		return nil
	}
	if err := r.authz.Authorize(ctx, c.Identity(), orderID); err != nil {
		return err
	}

	s := r.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAlive {
		return ErrConnClosed
	}
	members, ok := s.rooms[orderID]
	if !ok {
		members = make(map[*Conn]struct{})
		s.rooms[orderID] = members
	}
	members[c] = struct{}{}
	c.rooms[orderID] = struct{}{}
	return nil
}

// Leave removes c from the room for orderID. Leaving a room c is not in is
// a no-op.
func (r *Registry) Leave(c *Conn, orderID string) {
	s := r.shardFor(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	r.removeLocked(s, c, orderID)
}

func (r *Registry) removeLocked(s *shard, c *Conn, orderID string) {
	delete(c.rooms, orderID)
	members, ok := s.rooms[orderID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(s.rooms, orderID)
	}
}

// RemoveEverywhere removes c from every room it joined. It is safe to call
// more than once. Callers must move c out of StateAlive first (Conn.Close
// does) so no Join can slip in behind the snapshot.
func (r *Registry) RemoveEverywhere(c *Conn) {
	for _, orderID := range c.Rooms() {
		r.Leave(c, orderID)
	}
}

// Members returns a point-in-time snapshot of the room for orderID.
func (r *Registry) Members(orderID string) []*Conn {
	s := r.shardFor(orderID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.rooms[orderID])
}

// IsMember reports whether c is currently in the room for orderID.
func (r *Registry) IsMember(c *Conn, orderID string) bool {
	s := r.shardFor(orderID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[orderID][c]
	return ok
}

// RoomExists reports whether orderID currently has any members.
func (r *Registry) RoomExists(orderID string) bool {
	s := r.shardFor(orderID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[orderID]
	return ok
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.rooms)
		s.mu.RUnlock()
	}
	return n
}
