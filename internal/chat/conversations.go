package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// Page selects a window of a newest-first listing.
type Page struct {
	Limit  int
	Offset int
	// Before keeps only entries created strictly before it.
	Before time.Time
}

// MessagePage is a window of messages, newest first.
type MessagePage struct {
	Messages []*store.Message
	HasMore  bool
}

// NextCursor returns the creation time of the oldest message in the page, for use
// as the next Before.
func (p *MessagePage) NextCursor() (time.Time, bool) {
	if !p.HasMore || len(p.Messages) == 0 {
		return time.Time{}, false
	}
	return p.Messages[len(p.Messages)-1].CreatedAt, true
}

// Conversation is one inbox row.
type Conversation struct {
	ID           string
	Participants []string
	LastMessage  *store.Message
	UnreadCount  int
}

// ConversationPage is a window of a user's inbox.
type ConversationPage struct {
	Conversations []Conversation
	HasMore       bool
}

// NextCursor returns the time of the oldest last message in the page.
func (p *ConversationPage) NextCursor() (time.Time, bool) {
	if !p.HasMore || len(p.Conversations) == 0 {
		return time.Time{}, false
	}
	return p.Conversations[len(p.Conversations)-1].LastMessage.CreatedAt, true
}

// ListConversation returns a window of a conversation to one of its participants
// and marks everything addressed to them in it as read.
func (s *Service) ListConversation(ctx context.Context, conversationID, requester string, page Page) (*MessagePage, error) {
	key, err := membership(conversationID, requester)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(page.Limit, DefaultMessageLimit)
	msgs, err := s.messages.ListConversation(ctx, key.String(), store.Page{
		Limit:  limit + 1,
		Offset: page.Offset,
		Before: page.Before,
	})
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	res := &MessagePage{Messages: msgs, HasMore: len(msgs) > limit}
	if res.HasMore {
		res.Messages = msgs[:limit]
	}

	read, err := s.markRead(ctx, requester, key, nil)
	if err != nil {
		// the listing is still valid; statuses catch up on the next read
		s.log.Warn().Err(err).Str("conversation_id", key.String()).Msg("mark conversation read")
		return res, nil
	}
	if len(read) > 0 {
		updated := make(map[string]*store.Message, len(read))
		for _, m := range read {
			updated[m.ID] = m
		}
		for _, m := range res.Messages {
			if u, ok := updated[m.ID]; ok {
				m.State = u.State
				m.UpdatedAt = u.UpdatedAt
			}
		}
	}
	return res, nil
}

// ListConversations returns userID's inbox ordered by latest activity.
func (s *Service) ListConversations(ctx context.Context, userID string, page Page) (*ConversationPage, error) {
	limit := clampLimit(page.Limit, DefaultListLimit)
	rows, err := s.messages.ListConversations(ctx, userID, store.Page{
		Limit:  limit + 1,
		Offset: page.Offset,
		Before: page.Before,
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	res := &ConversationPage{HasMore: len(rows) > limit}
	if res.HasMore {
		rows = rows[:limit]
	}
	res.Conversations = make([]Conversation, 0, len(rows))
	for _, row := range rows {
		c := Conversation{
			ID:          row.ConversationID,
			LastMessage: row.LastMessage,
			UnreadCount: row.UnreadCount,
		}
		if key, err := conversation.Parse(row.ConversationID); err == nil {
			c.Participants = key.Participants()
		} else {
			c.Participants = []string{row.LastMessage.Sender, row.LastMessage.Recipient}
		}
		res.Conversations = append(res.Conversations, c)
	}
	return res, nil
}

// SearchRequest is a content search over the caller's messages.
type SearchRequest struct {
	UserID         string
	Query          string
	ConversationID string
	Limit          int
	Offset         int
}

// Search matches Query as a case-insensitive substring of message content. Only
// non-deleted messages the caller sent or received are considered.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*MessagePage, error) {
	text := strings.TrimSpace(req.Query)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if req.ConversationID != "" {
		if _, err := membership(req.ConversationID, req.UserID); err != nil {
			return nil, err
		}
	}

	limit := clampLimit(req.Limit, DefaultListLimit)
	msgs, err := s.messages.SearchMessages(ctx, store.SearchQuery{
		UserID:         req.UserID,
		Text:           text,
		ConversationID: req.ConversationID,
		Limit:          limit + 1,
		Offset:         req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	res := &MessagePage{Messages: msgs, HasMore: len(msgs) > limit}
	if res.HasMore {
		res.Messages = msgs[:limit]
	}
	return res, nil
}
