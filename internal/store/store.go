package store

import (
	"context"
	"errors"
	"time"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Page bounds a list query. Before, when set, keeps only rows strictly older than
// it; Offset skips rows after that filter.
type Page struct {
	Limit  int
	Offset int
	Before time.Time
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ConversationID string
	LastMessage    *Message
	UnreadCount    int
}

// SearchQuery scopes a content search to the messages UserID sent or received.
type SearchQuery struct {
	UserID         string
	Text           string
	ConversationID string
	Limit          int
	Offset         int
}

// StatusFilter selects messages for a bulk status change. Recipient is required.
// Empty ConversationID means all of the recipient's conversations; empty IDs
// means every matching message.
type StatusFilter struct {
	Recipient      string
	ConversationID string
	IDs            []string
}

// UserStore resolves user identities.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	PutUser(ctx context.Context, user *User) error
}

// CatalogStore reads products and carts owned by the commerce side.
type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	PutProduct(ctx context.Context, product *Product) error
	GetCart(ctx context.Context, id string) (*Cart, error)
	// GetActiveCart returns the user's current cart.
	GetActiveCart(ctx context.Context, userID string) (*Cart, error)
	PutCart(ctx context.Context, cart *Cart) error
}

// MessageStore persists messages and answers conversation-scoped queries.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *Message) error
	// GetMessage returns a message by id, soft-deleted ones included.
	GetMessage(ctx context.Context, id string) (*Message, error)
	// UpdateMessage applies mutate to the stored message atomically and persists the
	// result. If mutate returns an error nothing is written.
	UpdateMessage(ctx context.Context, id string, mutate func(*Message) error) (*Message, error)
	// ListConversation returns non-deleted messages newest first.
	ListConversation(ctx context.Context, conversationID string, page Page) ([]*Message, error)
	// ListConversations returns the user's conversations ordered by their latest
	// non-deleted message, newest first. Page.Before applies to that message.
	ListConversations(ctx context.Context, userID string, page Page) ([]ConversationSummary, error)
	// SearchMessages matches Text as a case-insensitive substring of non-deleted content.
	SearchMessages(ctx context.Context, q SearchQuery) ([]*Message, error)
	// AdvanceStatus moves every matching message that is behind target to target and
	// returns the messages it changed.
	AdvanceStatus(ctx context.Context, filter StatusFilter, target delivery.Status, at time.Time) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	CatalogStore
	MessageStore
	Close() error
}
