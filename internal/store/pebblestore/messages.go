package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

func convKey(m *store.Message) []byte {
	return key("conv", m.ConversationID, fmt.Sprintf("%020d", m.CreatedAt.UnixNano()), m.ID)
}

func (s *Store) InsertMessage(_ context.Context, msg *store.Message) error {
	for _, id := range []string{msg.ID, msg.ConversationID, msg.Sender, msg.Recipient} {
		if err := validID(id); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closer, err := s.db.Get(key("msg", msg.ID)); err == nil {
		closer.Close()
		return fmt.Errorf("insert message: id %s already exists", msg.ID)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("insert message: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := setJSON(b, key("msg", msg.ID), msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if err := b.Set(convKey(msg), nil, nil); err != nil {
		return err
	}
	for _, uid := range []string{msg.Sender, msg.Recipient} {
		if err := b.Set(key("uconv", uid, msg.ConversationID), nil, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*store.Message, error) {
	return s.getMessage(id)
}

func (s *Store) getMessage(id string) (*store.Message, error) {
	var m store.Message
	if err := s.getJSON(key("msg", id), &m); err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return &m, nil
}

// UpdateMessage holds the write lock across read, mutate and write.
func (s *Store) UpdateMessage(_ context.Context, id string, mutate func(*store.Message) error) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.getMessage(id)
	if err != nil {
		return nil, err
	}
	orig := *msg
	if err := mutate(msg); err != nil {
		return nil, err
	}
	msg.ID, msg.ConversationID, msg.Sender, msg.Recipient = orig.ID, orig.ConversationID, orig.Sender, orig.Recipient
	msg.CreatedAt = orig.CreatedAt

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, key("msg", id), msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// timeline walks a conversation newest first, stopping when fn returns false.
// Only messages created before `before` are visited when it is set.
func (s *Store) timeline(conversationID string, before time.Time, fn func(*store.Message) (bool, error)) error {
	p := prefix("conv", conversationID)
	var upper []byte
	if !before.IsZero() {
		upper = append(append([]byte(nil), p...), fmt.Sprintf("%020d", before.UnixNano())...)
	}

	var innerErr error
	err := s.scanKeys(p, upper, true, func(k []byte) bool {
		m, err := s.getMessage(lastPart(k))
		if err != nil {
			innerErr = err
			return false
		}
		cont, err := fn(m)
		if err != nil {
			innerErr = err
			return false
		}
		return cont
	})
	if err != nil {
		return err
	}
	return innerErr
}

func (s *Store) ListConversation(_ context.Context, conversationID string, page store.Page) ([]*store.Message, error) {
	var (
		out     []*store.Message
		skipped int
	)
	err := s.timeline(conversationID, page.Before, func(m *store.Message) (bool, error) {
		if m.IsDeleted {
			return true, nil
		}
		if skipped < page.Offset {
			skipped++
			return true, nil
		}
		out = append(out, m)
		return page.Limit <= 0 || len(out) < page.Limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return out, nil
}

func (s *Store) conversationsOf(userID string) ([]string, error) {
	var ids []string
	err := s.scanKeys(prefix("uconv", userID), nil, false, func(k []byte) bool {
		ids = append(ids, lastPart(k))
		return true
	})
	return ids, err
}

func (s *Store) ListConversations(_ context.Context, userID string, page store.Page) ([]store.ConversationSummary, error) {
	convs, err := s.conversationsOf(userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var summaries []store.ConversationSummary
	for _, cid := range convs {
		sum := store.ConversationSummary{ConversationID: cid}
		err := s.timeline(cid, time.Time{}, func(m *store.Message) (bool, error) {
			if m.IsDeleted {
				return true, nil
			}
			if sum.LastMessage == nil {
				sum.LastMessage = m
			}
			if m.Recipient == userID && m.Status != delivery.StatusRead {
				sum.UnreadCount++
			}
			return true, nil
		})
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", cid, err)
		}
		if sum.LastMessage == nil {
			continue
		}
		if !page.Before.IsZero() && !sum.LastMessage.CreatedAt.Before(page.Before) {
			continue
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return newerFirst(summaries[i].LastMessage, summaries[j].LastMessage)
	})
	return paginate(summaries, page.Offset, page.Limit), nil
}

func (s *Store) SearchMessages(_ context.Context, q store.SearchQuery) ([]*store.Message, error) {
	convs := []string{q.ConversationID}
	if q.ConversationID == "" {
		var err error
		if convs, err = s.conversationsOf(q.UserID); err != nil {
			return nil, fmt.Errorf("search messages: %w", err)
		}
	}

	var hits []*store.Message
	for _, cid := range convs {
		err := s.timeline(cid, time.Time{}, func(m *store.Message) (bool, error) {
			if m.IsDeleted || (m.Sender != q.UserID && m.Recipient != q.UserID) {
				return true, nil
			}
			if store.ContainsFold(m.Content, q.Text) {
				hits = append(hits, m)
			}
			return true, nil
		})
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", cid, err)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return newerFirst(hits[i], hits[j]) })
	return paginate(hits, q.Offset, q.Limit), nil
}

func (s *Store) AdvanceStatus(_ context.Context, filter store.StatusFilter, target delivery.Status, at time.Time) ([]*store.Message, error) {
	if filter.Recipient == "" {
		return nil, errors.New("advance status: recipient is required")
	}
	if !target.Valid() || target == delivery.StatusSent {
		return nil, fmt.Errorf("advance status: invalid target %q", target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*store.Message
	collect := func(m *store.Message) (bool, error) {
		candidates = append(candidates, m)
		return true, nil
	}

	switch {
	case len(filter.IDs) > 0:
		for _, id := range filter.IDs {
			m, err := s.getMessage(id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, m)
		}
	case filter.ConversationID != "":
		if err := s.timeline(filter.ConversationID, time.Time{}, collect); err != nil {
			return nil, err
		}
	default:
		convs, err := s.conversationsOf(filter.Recipient)
		if err != nil {
			return nil, err
		}
		for _, cid := range convs {
			if err := s.timeline(cid, time.Time{}, collect); err != nil {
				return nil, err
			}
		}
	}

	b := s.db.NewBatch()
	defer b.Close()

	var changed []*store.Message
	for _, m := range candidates {
		if delivery.Authorize(filter.Recipient, m.Recipient) != nil {
			continue
		}
		if filter.ConversationID != "" && m.ConversationID != filter.ConversationID {
			continue
		}
		if !m.Advance(target, at) {
			continue
		}
		m.UpdatedAt = at
		if err := setJSON(b, key("msg", m.ID), m); err != nil {
			return nil, fmt.Errorf("advance status: %w", err)
		}
		changed = append(changed, m)
	}

	if len(changed) == 0 {
		return nil, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("commit status: %w", err)
	}
	return changed, nil
}

func newerFirst(a, b *store.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
