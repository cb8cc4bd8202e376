package core

import "sync"

// DefaultQueueSize bounds the outbound queue of a client.
const DefaultQueueSize = 64

// Client is one live connection as seen by the core layer. It satisfies
// presence.Conn.
type Client struct {
	id     string
	userID string

	Events chan *Event

	mu     sync.Mutex
	closed bool
	joined bool
	// conversation channels this client joined, guarded by the router
	channels map[string]struct{}
}

// NewClient constructs a client for an authenticated user. queueSize <= 0 uses
// DefaultQueueSize.
func NewClient(id, userID string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Client{
		id:       id,
		userID:   userID,
		Events:   make(chan *Event, queueSize),
		channels: make(map[string]struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// deliver queues ev without blocking. It reports false when the queue is full or
// the client is closed; the event is dropped for this client.
func (c *Client) deliver(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// markJoined records the join and reports whether it is the first one.
func (c *Client) markJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joined || c.closed {
		return false
	}
	c.joined = true
	return true
}

// Joined reports whether the client completed a join.
func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Close stops delivery and closes Events. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Events)
}
