// Package presence tracks which users have live connections.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Conn is a live connection handle owned by the transport.
type Conn interface {
	ID() string
	UserID() string
}

// Registry is the presence table. Connections and All return snapshots that stay
// valid after the registry changes.
type Registry interface {
	// Connect adds c to its user's connection set and reports whether the user just came online.
	Connect(ctx context.Context, c Conn) (bool, error)
	// Disconnect removes c and reports whether its user just went offline.
	Disconnect(ctx context.Context, c Conn) (bool, error)
	// Connections returns the handles of userID served by this process.
	Connections(userID string) []Conn
	// All returns every handle served by this process.
	All() []Conn
	// IsOnline reports whether userID has at least one live connection anywhere.
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type entry struct {
	conns       map[string]Conn
	connectedAt time.Time
}

// Local is an in-process Registry.
type Local struct {
	mu     sync.RWMutex
	users  map[string]*entry
	byConn map[string]string
	now    func() time.Time
}

// NewLocal builds an empty registry.
func NewLocal() *Local {
	return &Local{
		users:  make(map[string]*entry),
		byConn: make(map[string]string),
		now:    time.Now,
	}
}

func (l *Local) Connect(_ context.Context, c Conn) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byConn[c.ID()]; exists {
		return false, nil
	}

	uid := c.UserID()
	e, ok := l.users[uid]
	if !ok {
		e = &entry{conns: make(map[string]Conn), connectedAt: l.now()}
		l.users[uid] = e
	}
	e.conns[c.ID()] = c
	l.byConn[c.ID()] = uid

	return !ok, nil
}

func (l *Local) Disconnect(_ context.Context, c Conn) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	uid, exists := l.byConn[c.ID()]
	if !exists {
		return false, nil
	}
	delete(l.byConn, c.ID())

	e := l.users[uid]
	delete(e.conns, c.ID())
	if len(e.conns) > 0 {
		return false, nil
	}
	delete(l.users, uid)
	return true, nil
}

func (l *Local) Connections(userID string) []Conn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.users[userID]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

func (l *Local) All() []Conn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Conn, 0, len(l.byConn))
	for _, e := range l.users {
		for _, c := range e.conns {
			out = append(out, c)
		}
	}
	return out
}

func (l *Local) IsOnline(_ context.Context, userID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.users[userID]
	return ok, nil
}

// ConnectedAt returns when userID's current online period started.
func (l *Local) ConnectedAt(userID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.users[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.connectedAt, true
}

// Online returns the ids of users with local connections, sorted.
func (l *Local) Online() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.users))
	for uid := range l.users {
		out = append(out, uid)
	}
	l.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Counts returns the number of online users and live connections.
func (l *Local) Counts() (users, conns int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.users), len(l.byConn)
}
