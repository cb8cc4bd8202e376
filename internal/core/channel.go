package core

// Channel groups the clients that joined the same conversation.
type Channel struct {
	ID      string
	clients map[*Client]struct{}
}

// NewChannel constructs a channel with no clients.
func NewChannel(id string) *Channel {
	return &Channel{
		ID:      id,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the channel. Returns true if newly added.
func (ch *Channel) AddClient(c *Client) bool {
	if _, exists := ch.clients[c]; exists {
		return false
	}
	ch.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the channel. Returns true if removed.
func (ch *Channel) RemoveClient(c *Client) bool {
	if _, exists := ch.clients[c]; !exists {
		return false
	}
	delete(ch.clients, c)
	return true
}

// Clients returns a snapshot of the members.
func (ch *Channel) Clients() []*Client {
	out := make([]*Client, 0, len(ch.clients))
	for c := range ch.clients {
		out = append(out, c)
	}
	return out
}

// Empty returns true if no clients are in the channel.
func (ch *Channel) Empty() bool {
	return len(ch.clients) == 0
}
