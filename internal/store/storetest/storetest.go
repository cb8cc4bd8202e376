// Package storetest holds the behaviour every store.Store implementation must show.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/reaction"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// Factory returns a fresh, empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Users", testUsers},
		{"Catalog", testCatalog},
		{"InsertAndGet", testInsertAndGet},
		{"ListConversation", testListConversation},
		{"UpdateMessage", testUpdateMessage},
		{"ListConversations", testListConversations},
		{"Search", testSearch},
		{"AdvanceStatus", testAdvanceStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMessage(t *testing.T, id, sender, recipient, content string, at time.Time) *store.Message {
	t.Helper()
	k, err := conversation.Derive(sender, recipient)
	require.NoError(t, err)
	return &store.Message{
		ID:             id,
		ConversationID: k.String(),
		Sender:         sender,
		Recipient:      recipient,
		Content:        content,
		Type:           store.MessageText,
		State:          delivery.NewState(),
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func insert(t *testing.T, s store.Store, msgs ...*store.Message) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, s.InsertMessage(context.Background(), m))
	}
}

func ids(msgs []*store.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func softDelete(t *testing.T, s store.Store, id string) {
	t.Helper()
	_, err := s.UpdateMessage(context.Background(), id, func(m *store.Message) error {
		now := base.Add(time.Hour)
		m.IsDeleted = true
		m.DeletedAt = &now
		m.DeletedBy = m.Sender
		return nil
	})
	require.NoError(t, err)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetUser(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutUser(ctx, &store.User{ID: "alice", Username: "alice", CreatedAt: base}))
	require.NoError(t, s.PutUser(ctx, &store.User{ID: "alice", Username: "alice", DisplayName: "Alice A.", IsVerified: true, CreatedAt: base.Add(time.Hour)}))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", u.DisplayName)
	assert.True(t, u.IsVerified)
	assert.True(t, u.CreatedAt.Equal(base), "created_at is kept on upsert")
}

func testCatalog(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetProduct(ctx, "p-missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutProduct(ctx, &store.Product{ID: "p1", Name: "Linen Shirt", Price: 39.5, Currency: "USD", Images: []string{"a.jpg"}}))
	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", p.Name)
	assert.Equal(t, []string{"a.jpg"}, p.Images)

	_, err = s.GetActiveCart(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	old := &store.Cart{ID: "c1", UserID: "alice", Currency: "USD", Active: true, CreatedAt: base,
		Items: []store.CartItem{{ProductID: "p1", Quantity: 1, Price: 39.5}}}
	fresh := &store.Cart{ID: "c2", UserID: "alice", Currency: "USD", Active: true, CreatedAt: base.Add(time.Hour),
		Items: []store.CartItem{{ProductID: "p1", Quantity: 2, Price: 39.5}}}
	require.NoError(t, s.PutCart(ctx, old))
	require.NoError(t, s.PutCart(ctx, fresh))

	active, err := s.GetActiveCart(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "c2", active.ID)
	assert.Equal(t, 2, active.TotalItems())
	assert.InDelta(t, 79.0, active.Total(), 0.001)

	c, err := s.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", c.UserID)
}

func testInsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	m := newMessage(t, "m1", "alice", "bob", "look at this", base)
	m.Type = store.MessageCart
	m.ReplyTo = "m0"
	m.Media = []store.Media{{Type: "image", URL: "https://cdn/x.jpg", Size: 1024, MimeType: "image/jpeg"}}
	m.SharedContent = &store.SharedContent{Cart: &store.SharedCart{
		Items:       []store.SharedCartItem{{ProductID: "p1", Quantity: 2, Price: 5, TotalPrice: 10}},
		TotalAmount: 10,
		Currency:    "USD",
	}}
	m.Reactions = reaction.Set{{UserID: "bob", Emoji: "🔥", CreatedAt: base}}
	insert(t, s, m)

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", got.ConversationID)
	assert.Equal(t, store.MessageCart, got.Type)
	assert.Equal(t, delivery.StatusSent, got.Status)
	assert.Equal(t, "m0", got.ReplyTo)
	require.Len(t, got.Media, 1)
	assert.Equal(t, int64(1024), got.Media[0].Size)
	require.NotNil(t, got.SharedContent)
	require.NotNil(t, got.SharedContent.Cart)
	assert.Equal(t, store.MessageCart, got.SharedContent.Kind())
	assert.InDelta(t, 10, got.SharedContent.Cart.TotalAmount, 0.001)
	assert.Equal(t, map[string]int{"🔥": 1}, got.Reactions.Counts())
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetMessage(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testListConversation(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		insert(t, s, newMessage(t, fmt.Sprintf("m%d", i), "alice", "bob", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	insert(t, s, newMessage(t, "other", "alice", "carol", "elsewhere", base.Add(10*time.Minute)))
	softDelete(t, s, "m3")

	all, err := s.ListConversation(ctx, "alice_bob", store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m2", "m1", "m0"}, ids(all))

	limited, err := s.ListConversation(ctx, "alice_bob", store.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m2"}, ids(limited))

	offset, err := s.ListConversation(ctx, "alice_bob", store.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m0"}, ids(offset))

	before, err := s.ListConversation(ctx, "alice_bob", store.Page{Limit: 10, Before: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m0"}, ids(before))

	// soft-deleted messages stay addressable by id
	deleted, err := s.GetMessage(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "alice", deleted.DeletedBy)
}

func testUpdateMessage(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s, newMessage(t, "m1", "alice", "bob", "first", base))

	boom := errors.New("boom")
	_, err := s.UpdateMessage(ctx, "m1", func(m *store.Message) error {
		m.Content = "should not persist"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content)

	edited := base.Add(time.Minute)
	updated, err := s.UpdateMessage(ctx, "m1", func(m *store.Message) error {
		m.OriginalContent = m.Content
		m.Content = "second"
		m.IsEdited = true
		m.EditedAt = &edited
		m.Sender = "mallory"
		m.Reactions, _ = m.Reactions.Toggle("bob", "👍", edited)
		m.UpdatedAt = edited
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Sender, "identity fields are immutable")

	got, err = s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
	assert.Equal(t, "first", got.OriginalContent)
	assert.True(t, got.IsEdited)
	require.NotNil(t, got.EditedAt)
	assert.True(t, got.EditedAt.Equal(edited))
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, map[string]int{"👍": 1}, got.Reactions.Counts())

	_, err = s.UpdateMessage(ctx, "missing", func(*store.Message) error { return nil })
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testListConversations(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s,
		newMessage(t, "b1", "bob", "alice", "hey alice", base),
		newMessage(t, "b2", "bob", "alice", "you there?", base.Add(time.Minute)),
		newMessage(t, "a1", "alice", "bob", "yes", base.Add(2*time.Minute)),
		newMessage(t, "c1", "carol", "alice", "cart for you", base.Add(3*time.Minute)),
		newMessage(t, "c2", "carol", "alice", "oops", base.Add(4*time.Minute)),
		newMessage(t, "x1", "bob", "carol", "not alice's", base.Add(5*time.Minute)),
	)
	softDelete(t, s, "c2")

	rows, err := s.ListConversations(ctx, "alice", store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "alice_carol", rows[0].ConversationID)
	assert.Equal(t, "c1", rows[0].LastMessage.ID, "deleted message is not the last message")
	assert.Equal(t, 1, rows[0].UnreadCount)

	assert.Equal(t, "alice_bob", rows[1].ConversationID)
	assert.Equal(t, "a1", rows[1].LastMessage.ID)
	assert.Equal(t, 2, rows[1].UnreadCount, "only messages addressed to alice count")

	paged, err := s.ListConversations(ctx, "alice", store.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "alice_bob", paged[0].ConversationID)

	cursor, err := s.ListConversations(ctx, "alice", store.Page{Limit: 10, Before: rows[0].LastMessage.CreatedAt})
	require.NoError(t, err)
	require.Len(t, cursor, 1)
	assert.Equal(t, "alice_bob", cursor[0].ConversationID)

	_, err = s.AdvanceStatus(ctx, store.StatusFilter{Recipient: "alice", ConversationID: "alice_bob"}, delivery.StatusRead, base.Add(time.Hour))
	require.NoError(t, err)
	rows, err = s.ListConversations(ctx, "alice", store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, rows[1].UnreadCount)

	none, err := s.ListConversations(ctx, "dave", store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s,
		newMessage(t, "m1", "alice", "bob", "Check out my CART!", base),
		newMessage(t, "m2", "bob", "alice", "nice cart", base.Add(time.Minute)),
		newMessage(t, "m3", "alice", "bob", "cartography class", base.Add(2*time.Minute)),
		newMessage(t, "m4", "alice", "carol", "shared cart", base.Add(3*time.Minute)),
		newMessage(t, "m5", "bob", "carol", "carol's cart", base.Add(4*time.Minute)),
		newMessage(t, "m6", "alice", "bob", "100% off", base.Add(5*time.Minute)),
		newMessage(t, "m7", "alice", "bob", "ÜBER deal", base.Add(6*time.Minute)),
	)
	softDelete(t, s, "m3")

	hits, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "alice", Text: "cart", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m2", "m1"}, ids(hits))

	scoped, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "alice", Text: "CaRt", ConversationID: "alice_bob", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, ids(scoped))

	// a non-participant gets nothing even when naming the conversation
	outsider, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "carol", Text: "cart", ConversationID: "alice_bob", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, outsider)

	literal, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "alice", Text: "0%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m6"}, ids(literal))

	wildcard, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "alice", Text: "%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m6"}, ids(wildcard), "percent is matched literally")

	unicode, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "alice", Text: "über", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m7"}, ids(unicode))

	page, err := s.SearchMessages(ctx, store.SearchQuery{UserID: "alice", Text: "cart", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids(page))
}

func testAdvanceStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s,
		newMessage(t, "toBob1", "alice", "bob", "one", base),
		newMessage(t, "toBob2", "alice", "bob", "two", base.Add(time.Minute)),
		newMessage(t, "toAlice", "bob", "alice", "three", base.Add(2*time.Minute)),
		newMessage(t, "toBobElsewhere", "carol", "bob", "four", base.Add(3*time.Minute)),
	)

	_, err := s.AdvanceStatus(ctx, store.StatusFilter{}, delivery.StatusRead, base)
	require.Error(t, err)

	deliveredAt := base.Add(10 * time.Minute)
	changed, err := s.AdvanceStatus(ctx, store.StatusFilter{Recipient: "bob", IDs: []string{"toBob1", "toAlice", "missing"}}, delivery.StatusDelivered, deliveredAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"toBob1"}, ids(changed))

	readAt := base.Add(20 * time.Minute)
	changed, err = s.AdvanceStatus(ctx, store.StatusFilter{Recipient: "bob", ConversationID: "alice_bob"}, delivery.StatusRead, readAt)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"toBob1", "toBob2"}, ids(changed))

	m1, err := s.GetMessage(ctx, "toBob1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusRead, m1.Status)
	assert.True(t, m1.DeliveredAt.Equal(deliveredAt), "deliveredAt is set once")
	assert.True(t, m1.ReadAt.Equal(readAt))

	m2, err := s.GetMessage(ctx, "toBob2")
	require.NoError(t, err)
	require.NotNil(t, m2.DeliveredAt, "sent -> read also stamps delivery")
	assert.True(t, m2.ReadAt.Equal(readAt))

	untouched, err := s.GetMessage(ctx, "toAlice")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, untouched.Status)
	assert.Nil(t, untouched.ReadAt)

	elsewhere, err := s.GetMessage(ctx, "toBobElsewhere")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, elsewhere.Status)

	// idempotent, and never regresses
	changed, err = s.AdvanceStatus(ctx, store.StatusFilter{Recipient: "bob", ConversationID: "alice_bob"}, delivery.StatusRead, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, changed)
	changed, err = s.AdvanceStatus(ctx, store.StatusFilter{Recipient: "bob"}, delivery.StatusDelivered, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"toBobElsewhere"}, ids(changed))

	m1, err = s.GetMessage(ctx, "toBob1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusRead, m1.Status)
	assert.True(t, m1.ReadAt.Equal(readAt))
}
