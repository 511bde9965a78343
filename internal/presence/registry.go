// Package presence tracks which users currently hold at least one live
// real-time connection. The registry is purely in-memory: it is created at
// process start, torn down at shutdown, and never persisted. After a restart
// every user appears offline until their client reconnects.
package presence

import (
	"sort"
	"sync"
)

// Conn is the minimal view of a live connection handle the registry needs.
// The websocket layer's client type satisfies it.
type Conn interface {
	// ID uniquely identifies the connection, not the user. One user may
	// own any number of connections (tabs, devices).
	ID() string
}

// Registry maps a logical user identity to the set of currently live
// connection handles. Mutation is reserved to the connection lifecycle
// manager; the fan-out router only reads.
type Registry struct {
	mu sync.RWMutex

	// byUser maps userID -> connectionID -> handle.
	byUser map[string]map[string]Conn
	// byConn maps connectionID -> userID, so deregistration does not need
	// the caller to remember the owner.
	byConn map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Register adds the handle under userID. Registering the same handle twice is
// a no-op; re-registering it under a different user moves it, preserving the
// invariant that a handle appears in at most one entry.
func (r *Registry) Register(userID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[c.ID()]; ok {
		if owner == userID {
			return
		}
		r.removeLocked(owner, c.ID())
	}

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]Conn)
	}
	r.byUser[userID][c.ID()] = c
	r.byConn[c.ID()] = userID
}

// Deregister removes the handle from whichever user it was registered under.
// It is a no-op for unknown handles.
func (r *Registry) Deregister(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byConn[c.ID()]
	if !ok {
		return
	}
	r.removeLocked(owner, c.ID())
}

func (r *Registry) removeLocked(userID, connID string) {
	delete(r.byConn, connID)
	if conns := r.byUser[userID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ConnectionsFor returns the live handles for a user. The slice is a snapshot;
// an offline or unknown user yields an empty slice.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// OnlineUserIDs returns a sorted snapshot of every user with at least one
// live connection.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionCount reports the total number of live handles, across all users.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.byUser {
		total += len(conns)
	}
	return total
}
