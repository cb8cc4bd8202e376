package core

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
)

// Metrics receives fan-out counters.
type Metrics interface {
	EventFannedOut(name string, n int)
	EventDropped(name string)
}

type nopMetrics struct{}

func (nopMetrics) EventFannedOut(string, int) {}
func (nopMetrics) EventDropped(string)        {}

// Router resolves event targets to live clients of this process and delivers
// to each of them at most once.
type Router struct {
	registry presence.Registry
	metrics  Metrics
	log      *zerolog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRouter builds a router over registry. metrics may be nil.
func NewRouter(registry presence.Registry, metrics Metrics, logger *zerolog.Logger) *Router {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Router{
		registry: registry,
		metrics:  metrics,
		log:      logger,
		channels: make(map[string]*Channel),
	}
}

// Route is an events.Handler: it fans ev out to every client its target selects.
func (r *Router) Route(ev events.Event) {
	out := &Event{Kind: EventBroadcast, Name: ev.Name, Data: json.RawMessage(ev.Payload)}
	r.deliver(out, r.resolve(ev.Target))
}

// ToUser delivers ev to every connection of userID.
func (r *Router) ToUser(userID string, ev *Event) int {
	return r.deliver(ev, r.resolve(events.ToUsers(userID)))
}

// ToConversation delivers ev to the clients that joined conversationID, except
// the connection excludeConn.
func (r *Router) ToConversation(conversationID string, ev *Event, excludeConn string) int {
	return r.deliver(ev, r.resolve(events.Target{Conversation: conversationID, ExcludeConn: excludeConn}))
}

// resolve snapshots the clients selected by t. Each client appears once.
func (r *Router) resolve(t events.Target) []*Client {
	seen := make(map[string]struct{})
	var out []*Client
	add := func(c *Client) {
		if c == nil || c.ID() == t.ExcludeConn || (t.ExcludeUser != "" && c.UserID() == t.ExcludeUser) {
			return
		}
		if _, dup := seen[c.ID()]; dup {
			return
		}
		seen[c.ID()] = struct{}{}
		out = append(out, c)
	}
	addConns := func(conns []presence.Conn) {
		for _, pc := range conns {
			if c, ok := pc.(*Client); ok {
				add(c)
			}
		}
	}

	if t.Everyone {
		addConns(r.registry.All())
	} else {
		for _, uid := range t.Users {
			addConns(r.registry.Connections(uid))
		}
	}
	if t.Conversation != "" {
		r.mu.RLock()
		if ch, ok := r.channels[t.Conversation]; ok {
			for _, c := range ch.Clients() {
				add(c)
			}
		}
		r.mu.RUnlock()
	}
	return out
}

func (r *Router) deliver(ev *Event, clients []*Client) int {
	n := 0
	for _, c := range clients {
		if c.deliver(ev) {
			n++
			continue
		}
		r.metrics.EventDropped(ev.Name)
		r.log.Debug().Str("event", ev.Name).Str("client_id", c.ID()).Msg("dropped event for slow client")
	}
	if n > 0 {
		r.metrics.EventFannedOut(ev.Name, n)
	}
	return n
}

// Join subscribes c to a conversation channel. Returns false if it already was.
func (r *Router) Join(conversationID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[conversationID]
	if !ok {
		ch = NewChannel(conversationID)
		r.channels[conversationID] = ch
	}
	if !ch.AddClient(c) {
		return false
	}
	c.channels[conversationID] = struct{}{}
	return true
}

// Leave unsubscribes c from a conversation channel. Returns false if it was not in it.
func (r *Router) Leave(conversationID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(conversationID, c)
}

// LeaveAll removes c from every channel it joined.
func (r *Router) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range c.channels {
		r.leaveLocked(id, c)
	}
}

func (r *Router) leaveLocked(conversationID string, c *Client) bool {
	ch, ok := r.channels[conversationID]
	if !ok || !ch.RemoveClient(c) {
		return false
	}
	delete(c.channels, conversationID)
	if ch.Empty() {
		delete(r.channels, conversationID)
	}
	return true
}

// ChannelSize returns the number of clients in a conversation channel.
func (r *Router) ChannelSize(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch, ok := r.channels[conversationID]; ok {
		return len(ch.clients)
	}
	return 0
}
