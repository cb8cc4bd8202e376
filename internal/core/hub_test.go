package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
)

func conversationID(t *testing.T, a, b string) string {
	t.Helper()
	key, err := conversation.Derive(a, b)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return key.String()
}

func TestHubJoinAnnouncesPresenceOnce(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	bob := th.join(t, "b1", "bob")
	a1 := th.join(t, "a1", "alice")

	ev := mustEvent(t, bob.Events, events.UserOnline)
	var p proto.Presence
	if err := json.Unmarshal(ev.Data.(json.RawMessage), &p); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if p.UserID != "alice" {
		t.Fatalf("expected alice online, got %q", p.UserID)
	}
	noEvent(t, a1.Events, events.UserOnline)

	a2 := th.join(t, "a2", "alice")
	noEvent(t, bob.Events, events.UserOnline)

	th.hub.Disconnect(ctx, a1)
	noEvent(t, bob.Events, events.UserOffline)

	th.hub.Disconnect(ctx, a2)
	mustEvent(t, bob.Events, events.UserOffline)

	if online, _ := th.registry.IsOnline(ctx, "alice"); online {
		t.Fatalf("alice should be offline after her last connection closed")
	}
}

func TestHubJoinDeliversPending(t *testing.T) {
	th := newTestHub(t)
	th.join(t, "b1", "bob")
	th.join(t, "b2", "bob")

	th.messaging.mu.Lock()
	defer th.messaging.mu.Unlock()
	if got := th.messaging.pending["bob"]; got != 2 {
		t.Fatalf("expected pending delivery on each join, got %d", got)
	}
}

func TestHubFanOutToRecipientConnections(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	a1 := th.join(t, "a1", "alice")
	a2 := th.join(t, "a2", "alice")
	b1 := th.join(t, "b1", "bob")
	b2 := th.join(t, "b2", "bob")

	ev, err := events.New(events.NewMessage, events.ToUsers("bob"), map[string]string{"content": "hi"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := th.bus.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mustEvent(t, b1.Events, events.NewMessage)
	mustEvent(t, b2.Events, events.NewMessage)
	noEvent(t, a1.Events, events.NewMessage)
	noEvent(t, a2.Events, events.NewMessage)

	th.metrics.mu.Lock()
	defer th.metrics.mu.Unlock()
	if got := th.metrics.fanned[events.NewMessage]; got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestHubJoinRules(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	c := NewClient("x1", "alice", 0)
	th.hub.Handle(ctx, c, &Command{Kind: CommandTyping, ConversationID: "alice_bob"})
	mustError(t, c.Events, ErrCodeNotJoined)

	th.hub.Handle(ctx, c, &Command{Kind: CommandJoin, UserID: "mallory"})
	mustError(t, c.Events, ErrCodeForbidden)
	if c.Joined() {
		t.Fatalf("client must not be joined as another user")
	}

	th.hub.Handle(ctx, c, &Command{Kind: CommandJoin})
	mustEvent(t, c.Events, proto.EventJoined)

	th.hub.Handle(ctx, c, &Command{Kind: CommandJoin})
	mustError(t, c.Events, ErrCodeAlreadyJoined)
}

func TestHubConversationChannel(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()
	conv := conversationID(t, "alice", "bob")

	a1 := th.join(t, "a1", "alice")
	a2 := th.join(t, "a2", "alice")
	b1 := th.join(t, "b1", "bob")
	carol := th.join(t, "c1", "carol")

	th.hub.Handle(ctx, a1, &Command{Kind: CommandJoinConversation, ConversationID: conv})
	mustEvent(t, a1.Events, proto.EventConversationJoined)
	th.hub.Handle(ctx, b1, &Command{Kind: CommandJoinConversation, ConversationID: conv})
	mustEvent(t, b1.Events, proto.EventConversationJoined)

	th.hub.Handle(ctx, carol, &Command{Kind: CommandJoinConversation, ConversationID: conv})
	mustError(t, carol.Events, ErrCodeForbidden)
	if got := th.hub.Router().ChannelSize(conv); got != 2 {
		t.Fatalf("expected 2 clients in channel, got %d", got)
	}

	th.hub.Handle(ctx, a1, &Command{Kind: CommandTyping, ConversationID: conv, IsTyping: true})
	ev := mustEvent(t, b1.Events, events.UserTyping)
	var typing proto.UserTyping
	if err := json.Unmarshal(ev.Data.(json.RawMessage), &typing); err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	if typing.UserID != "alice" || !typing.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}
	noEvent(t, a1.Events, events.UserTyping)
	noEvent(t, a2.Events, events.UserTyping)

	th.hub.Handle(ctx, carol, &Command{Kind: CommandTyping, ConversationID: conv, IsTyping: true})
	mustError(t, carol.Events, ErrCodeForbidden)

	th.hub.Handle(ctx, b1, &Command{Kind: CommandLeaveConversation, ConversationID: conv})
	mustEvent(t, b1.Events, proto.EventConversationLeft)
	th.hub.Handle(ctx, b1, &Command{Kind: CommandLeaveConversation, ConversationID: conv})
	mustError(t, b1.Events, ErrCodeNotInConversation)

	th.hub.Disconnect(ctx, a1)
	if got := th.hub.Router().ChannelSize(conv); got != 0 {
		t.Fatalf("expected empty channel after disconnect, got %d", got)
	}
}

func TestHubAcknowledgements(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()
	conv := conversationID(t, "alice", "bob")

	b1 := th.join(t, "b1", "bob")
	th.hub.Handle(ctx, b1, &Command{Kind: CommandAckDelivered, ConversationID: conv, MessageIDs: []string{"m1"}})
	th.hub.Handle(ctx, b1, &Command{Kind: CommandAckRead, ConversationID: conv, MessageIDs: []string{"m1", "m2"}})
	noEvent(t, b1.Events, "")

	th.messaging.mu.Lock()
	acked, read := th.messaging.acked["bob"], th.messaging.read["bob"]
	sources := th.messaging.sources
	th.messaging.mu.Unlock()
	if len(acked) != 1 || len(read) != 2 {
		t.Fatalf("acks not forwarded: delivered=%v read=%v", acked, read)
	}
	if len(sources) != 2 || sources[0] != "b1" || sources[1] != "b1" {
		t.Fatalf("acks should carry the acknowledging connection, got %v", sources)
	}

	th.hub.Handle(ctx, b1, &Command{Kind: CommandAckRead, ConversationID: conversationID(t, "alice", "carol")})
	mustError(t, b1.Events, ErrCodeForbidden)

	th.messaging.mu.Lock()
	th.messaging.failAck = errors.New("disk on fire")
	th.messaging.mu.Unlock()
	th.hub.Handle(ctx, b1, &Command{Kind: CommandAckDelivered, ConversationID: conv})
	select {
	case ev := <-b1.Events:
		if ev.Error == nil || ev.Error.Code != ErrCodeInternal || ev.Error.Message != "internal error" {
			t.Fatalf("internal failure leaked or missing: %+v", ev.Error)
		}
	default:
		t.Fatalf("expected internal error event")
	}
}

func TestRouterDropsForSlowClient(t *testing.T) {
	th := newTestHub(t)

	slow := NewClient("s1", "bob", 1)
	th.hub.Handle(context.Background(), slow, &Command{Kind: CommandJoin})

	// the join reply already fills the queue
	if n := th.hub.Router().ToUser("bob", &Event{Kind: EventBroadcast, Name: "ping"}); n != 0 {
		t.Fatalf("expected no delivery to a full queue, got %d", n)
	}

	th.metrics.mu.Lock()
	defer th.metrics.mu.Unlock()
	if th.metrics.dropped["ping"] != 1 {
		t.Fatalf("expected one dropped event, got %d", th.metrics.dropped["ping"])
	}
}

func TestDisconnectedClientGetsNothing(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	c := th.join(t, "a1", "alice")
	th.hub.Disconnect(ctx, c)
	th.hub.Disconnect(ctx, c)

	if n := th.hub.Router().ToUser("alice", &Event{Kind: EventBroadcast, Name: "ping"}); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
	for range c.Events {
	}
}
