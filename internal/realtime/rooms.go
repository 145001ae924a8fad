package realtime

import (
	"context"
	"fmt"
	"sync"

	"converse/infrastructure"
)

// ParticipantChecker is the slice of the membership store the router
// needs: durable conversation participation.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Router manages which connections are subscribed to which
// conversation's broadcast group. Subscriptions never outlive the
// connection. Forward and reverse indexes mirror each other so a
// disconnect clears every subscription in O(rooms of that conn).
type Router struct {
	store ParticipantChecker

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]map[string]struct{}
}

func NewRouter(store ParticipantChecker) *Router {
	return &Router{
		store: store,
		rooms: make(map[string]map[*Conn]struct{}),
		conns: make(map[*Conn]map[string]struct{}),
	}
}

// Join subscribes c to the conversation's broadcasts after confirming
// durable participation. The membership check happens outside the lock;
// only the map mutation is guarded.
func (rt *Router) Join(ctx context.Context, c *Conn, conversationID string) error {
	ok, err := rt.store.IsParticipant(ctx, conversationID, c.User().ID)
	if err != nil {
		return fmt.Errorf("participant check: %w", err)
	}
	if !ok {
		return infrastructure.ErrNotAuthorized
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.rooms[conversationID] == nil {
		rt.rooms[conversationID] = make(map[*Conn]struct{})
	}
	rt.rooms[conversationID][c] = struct{}{}
	if rt.conns[c] == nil {
		rt.conns[c] = make(map[string]struct{})
	}
	rt.conns[c][conversationID] = struct{}{}
	return nil
}

// Leave is always permitted and idempotent.
func (rt *Router) Leave(c *Conn, conversationID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.remove(c, conversationID)
}

// Drop removes c from every room it joined; called on disconnect.
func (rt *Router) Drop(c *Conn) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for conversationID := range rt.conns[c] {
		rt.remove(c, conversationID)
	}
}

func (rt *Router) remove(c *Conn, conversationID string) {
	if members, ok := rt.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(rt.rooms, conversationID)
		}
	}
	if rooms, ok := rt.conns[c]; ok {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(rt.conns, c)
		}
	}
}

// Broadcast enqueues the frame on every connection in the room except
// exclude (nil means nobody is excluded). The member set is snapshotted
// under the read lock; enqueueing never blocks.
func (rt *Router) Broadcast(conversationID string, frame []byte, exclude *Conn) {
	rt.mu.RLock()
	members := make([]*Conn, 0, len(rt.rooms[conversationID]))
	for c := range rt.rooms[conversationID] {
		if c != exclude {
			members = append(members, c)
		}
	}
	rt.mu.RUnlock()

	for _, c := range members {
		c.enqueue(frame)
	}
}

// Subscribed reports whether c currently receives broadcasts for the
// conversation.
func (rt *Router) Subscribed(c *Conn, conversationID string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	_, ok := rt.rooms[conversationID][c]
	return ok
}
