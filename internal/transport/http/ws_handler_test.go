package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/config"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/core"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
)

func TestWSRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}

func TestWSJoinReceivesNewMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bob := env.dial(t, ctx, "bob")
	send(t, ctx, bob, proto.InboundTypeJoin, proto.JoinData{Protocol: proto.ProtocolVersion})
	joined := readEvent(t, bob, proto.EventJoined)

	var ack proto.Joined
	if err := json.Unmarshal(joined.Data, &ack); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if ack.UserID != "bob" || ack.ConnectionID == "" || ack.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected joined payload: %+v", ack)
	}

	sent := env.sendText(t, "alice", "bob", "hello over ws")

	out := readEvent(t, bob, events.NewMessage)
	var pushed struct {
		Message        messageBody `json:"message"`
		ConversationID string      `json:"conversationId"`
	}
	if err := json.Unmarshal(out.Data, &pushed); err != nil {
		t.Fatalf("decode new_message: %v", err)
	}
	if pushed.ConversationID != "alice_bob" {
		t.Fatalf("expected conversationId alongside the message, got %q", pushed.ConversationID)
	}
	msg := pushed.Message
	if msg.ID != sent.ID || msg.Content != "hello over ws" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.SenderInfo == nil || msg.SenderInfo.DisplayName != "Alice Anders" || !msg.SenderInfo.IsVerified {
		t.Fatalf("expected sender profile on new_message, got %+v", msg.SenderInfo)
	}
}

func TestWSSenderSeesDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "alice")
	join(t, ctx, alice)
	bob := env.dial(t, ctx, "bob")
	join(t, ctx, bob)

	sent := env.sendText(t, "alice", "bob", "ping")

	out := readEvent(t, alice, events.MessageDelivered)
	var delivered proto.MessageDelivered
	if err := json.Unmarshal(out.Data, &delivered); err != nil {
		t.Fatalf("decode message_delivered: %v", err)
	}
	if delivered.MessageID != sent.ID || delivered.ConversationID != "alice_bob" {
		t.Fatalf("unexpected delivery: %+v", delivered)
	}
}

func TestWSProtocolErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "alice")

	send(t, ctx, conn, proto.InboundTypeTyping, proto.TypingData{ConversationID: "alice_bob", IsTyping: true})
	if out := readEvent(t, conn, proto.OutboundTypeError); out.Error == nil || out.Error.Code != core.ErrCodeNotJoined {
		t.Fatalf("expected not_joined, got %+v", out.Error)
	}

	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Protocol: proto.ProtocolVersion + 1})
	if out := readEvent(t, conn, proto.OutboundTypeError); out.Error == nil || out.Error.Code != errCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version, got %+v", out.Error)
	}

	send(t, ctx, conn, "shout", map[string]string{})
	if out := readEvent(t, conn, proto.OutboundTypeError); out.Error == nil || out.Error.Code != errCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", out.Error)
	}

	// the connection survives every error above
	join(t, ctx, conn)

	send(t, ctx, conn, proto.InboundTypeJoinConversation, proto.ConversationData{ConversationID: "bob_carol"})
	if out := readEvent(t, conn, proto.OutboundTypeError); out.Error == nil || out.Error.Code != core.ErrCodeForbidden {
		t.Fatalf("expected forbidden, got %+v", out.Error)
	}
}

func TestWSTypingAndPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "alice")
	join(t, ctx, alice)

	bob := env.dial(t, ctx, "bob")
	join(t, ctx, bob)

	online := readEvent(t, alice, events.UserOnline)
	var p proto.Presence
	if err := json.Unmarshal(online.Data, &p); err != nil || p.UserID != "bob" {
		t.Fatalf("expected bob online, got %s (%v)", online.Data, err)
	}

	send(t, ctx, alice, proto.InboundTypeJoinConversation, proto.ConversationData{ConversationID: "alice_bob"})
	readEvent(t, alice, proto.EventConversationJoined)
	send(t, ctx, bob, proto.InboundTypeJoinConversation, proto.ConversationData{ConversationID: "alice_bob"})
	readEvent(t, bob, proto.EventConversationJoined)

	send(t, ctx, bob, proto.InboundTypeTyping, proto.TypingData{ConversationID: "alice_bob", IsTyping: true})
	out := readEvent(t, alice, events.UserTyping)
	var typing proto.UserTyping
	if err := json.Unmarshal(out.Data, &typing); err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	if typing.UserID != "bob" || !typing.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}

	if err := bob.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close bob: %v", err)
	}
	offline := readEvent(t, alice, events.UserOffline)
	if err := json.Unmarshal(offline.Data, &p); err != nil || p.UserID != "bob" {
		t.Fatalf("expected bob offline, got %s (%v)", offline.Data, err)
	}
}

func TestWSReadAcknowledgement(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "alice")
	join(t, ctx, alice)
	sent := env.sendText(t, "alice", "bob", "read me")

	bob := env.dial(t, ctx, "bob")
	join(t, ctx, bob)
	bobPhone := env.dial(t, ctx, "bob")
	join(t, ctx, bobPhone)
	for _, conn := range []*websocket.Conn{alice, bob, bobPhone} {
		send(t, ctx, conn, proto.InboundTypeJoinConversation, proto.ConversationData{ConversationID: "alice_bob"})
		readEvent(t, conn, proto.EventConversationJoined)
	}
	send(t, ctx, bob, proto.InboundTypeMessageRead, proto.AckData{MessageID: sent.ID, ConversationID: "alice_bob"})

	out := readEvent(t, alice, events.MessagesRead)
	var read proto.MessagesRead
	if err := json.Unmarshal(out.Data, &read); err != nil {
		t.Fatalf("decode messages_read: %v", err)
	}
	if read.ReadBy != "bob" || len(read.MessageIDs) != 1 || read.MessageIDs[0] != sent.ID {
		t.Fatalf("unexpected read receipt: %+v", read)
	}
	readEvent(t, alice, events.MessageStatusUpdated)
	readEvent(t, bobPhone, events.MessageStatusUpdated)

	// the next event on bob's socket must be the new message, not an echo of the ack
	env.sendText(t, "alice", "bob", "after the ack")
	ctxRead, cancelRead := context.WithTimeout(ctx, 2*time.Second)
	defer cancelRead()
	for {
		var next outbound
		if err := wsjson.Read(ctxRead, bob, &next); err != nil {
			t.Fatalf("waiting for new_message: %v", err)
		}
		if next.Event == events.MessageStatusUpdated {
			t.Fatalf("acknowledging connection received its own status update")
		}
		if next.Event == events.NewMessage {
			break
		}
	}
}

func TestWSUpgradeThroughServerHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "carol")
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Protocol: proto.ProtocolVersion})
	if out := readEvent(t, conn, proto.EventJoined); out.Type != proto.OutboundTypeEvent {
		t.Fatalf("expected joined event, got %+v", out)
	}

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("REST routes must still be served next to /ws, got %d", resp.StatusCode)
	}
}

func TestWSRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.WSRateLimit = 1
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "alice")
	join(t, ctx, conn)

	send(t, ctx, conn, proto.InboundTypeTyping, proto.TypingData{ConversationID: "alice_bob"})
	if out := readEvent(t, conn, proto.OutboundTypeError); out.Error == nil || out.Error.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", out.Error)
	}
}

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name    string
		inbound proto.Inbound
		want    core.CommandKind
		errCode string
	}{
		{"join without data", proto.Inbound{Type: proto.InboundTypeJoin}, core.CommandJoin, ""},
		{"join current protocol", proto.Inbound{Type: proto.InboundTypeJoin, Data: json.RawMessage(`{"protocol":1}`)}, core.CommandJoin, ""},
		{"join future protocol", proto.Inbound{Type: proto.InboundTypeJoin, Data: json.RawMessage(`{"protocol":9}`)}, 0, errCodeUnsupportedVersion},
		{"join conversation", proto.Inbound{Type: proto.InboundTypeJoinConversation, Data: json.RawMessage(`{"conversationId":"alice_bob"}`)}, core.CommandJoinConversation, ""},
		{"leave without conversation", proto.Inbound{Type: proto.InboundTypeLeaveConversation, Data: json.RawMessage(`{}`)}, 0, core.ErrCodeBadRequest},
		{"typing", proto.Inbound{Type: proto.InboundTypeTyping, Data: json.RawMessage(`{"conversationId":"alice_bob","isTyping":true}`)}, core.CommandTyping, ""},
		{"delivered", proto.Inbound{Type: proto.InboundTypeMessageDelivered, Data: json.RawMessage(`{"conversationId":"alice_bob","messageId":"m1"}`)}, core.CommandAckDelivered, ""},
		{"read", proto.Inbound{Type: proto.InboundTypeMessageRead, Data: json.RawMessage(`{"conversationId":"alice_bob","messageIds":["m1","m2"]}`)}, core.CommandAckRead, ""},
		{"malformed data", proto.Inbound{Type: proto.InboundTypeTyping, Data: json.RawMessage(`"nope"`)}, 0, core.ErrCodeBadRequest},
		{"unknown type", proto.Inbound{Type: "shout"}, 0, errCodeInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, perr := inboundToCommand(tt.inbound)
			if tt.errCode != "" {
				if perr == nil || perr.Code != tt.errCode {
					t.Fatalf("expected error %q, got %+v", tt.errCode, perr)
				}
				return
			}
			if perr != nil {
				t.Fatalf("unexpected error: %+v", perr)
			}
			if cmd.Kind != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, cmd.Kind)
			}
		})
	}
}

func TestInboundAckCollectsIDs(t *testing.T) {
	cmd, perr := inboundToCommand(proto.Inbound{
		Type: proto.InboundTypeMessageRead,
		Data: json.RawMessage(`{"conversationId":"alice_bob","messageId":"m3","messageIds":["m1","m2"]}`),
	})
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if strings.Join(cmd.MessageIDs, ",") != "m1,m2,m3" {
		t.Fatalf("unexpected ids: %v", cmd.MessageIDs)
	}
}
