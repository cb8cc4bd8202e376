// Package events carries domain events from the messaging service to the
// connection router, in-process or through a broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Outbound event names as seen by clients.
const (
	NewMessage           = "new_message"
	MessageEdited        = "message_edited"
	MessageDeleted       = "message_deleted"
	MessageReaction      = "message_reaction"
	MessagesRead         = "messages_read"
	MessageDelivered     = "message_delivered"
	MessageStatusUpdated = "message-status-updated"
	UserOnline           = "user-online"
	UserOffline          = "user-offline"
	UserTyping           = "user-typing"
	CartShared           = "cart_shared"
	ProductShared        = "product_shared"
)

// Target selects the connections an event goes to. Selectors are combined; a
// connection matched by more than one still receives the event once.
type Target struct {
	// Users fans out to every connection of each listed user.
	Users []string `json:"users,omitempty"`
	// Conversation fans out to connections that joined the conversation channel.
	Conversation string `json:"conversation,omitempty"`
	// Everyone fans out to every connection.
	Everyone bool `json:"everyone,omitempty"`

	ExcludeUser string `json:"excludeUser,omitempty"`
	ExcludeConn string `json:"excludeConn,omitempty"`
}

// Event is a named payload plus its audience.
type Event struct {
	Name    string          `json:"name"`
	Target  Target          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// New encodes payload once so every recipient shares the same bytes.
func New(name string, target Target, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{Name: name, Target: target, Payload: data}, nil
}

// ToUsers is a shorthand Target.
func ToUsers(users ...string) Target {
	return Target{Users: users}
}

type sourceKey struct{}

// WithSource records on ctx the connection a request arrived on, so events it
// causes can skip that connection.
func WithSource(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, sourceKey{}, connID)
}

// Source returns the connection recorded by WithSource, or "".
func Source(ctx context.Context) string {
	id, _ := ctx.Value(sourceKey{}).(string)
	return id
}

// Handler consumes events.
type Handler func(Event)

// Publisher is the producing side of a bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus delivers published events to every subscribed handler.
type Bus interface {
	Publisher
	Subscribe(h Handler)
	Close() error
}

// LocalBus dispatches synchronously in the publishing goroutine, so events from
// one publisher reach handlers in publish order.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewLocalBus builds an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.dispatch(ev)
	return nil
}

func (b *LocalBus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *LocalBus) Close() error {
	return nil
}
