package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// Messaging is the part of the messaging service the hub drives.
type Messaging interface {
	CheckMembership(conversationID, userID string) error
	DeliverPending(ctx context.Context, userID string) (int, error)
	AcknowledgeDelivered(ctx context.Context, recipient, conversationID string, messageIDs []string) ([]*store.Message, error)
	MarkRead(ctx context.Context, reader, conversationID string, messageIDs []string) ([]*store.Message, error)
}

// Hub handles client commands and the connection lifecycle. Commands of one client
// are handled in that client's goroutine; the hub itself holds no per-call state.
type Hub struct {
	registry presence.Registry
	router   *Router
	events   events.Publisher
	chat     Messaging
	log      *zerolog.Logger
	now      func() time.Time
}

// NewHub wires a hub. Events published here (presence, typing) travel through pub
// and reach clients via the router subscribed to the same bus.
func NewHub(registry presence.Registry, router *Router, pub events.Publisher, chat Messaging, logger *zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		router:   router,
		events:   pub,
		chat:     chat,
		log:      logger,
		now:      time.Now,
	}
}

// Router returns the hub's router.
func (h *Hub) Router() *Router {
	return h.router
}

// Handle executes one command of c. Failures are reported to c as error events.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Kind != CommandJoin && !c.Joined() {
		c.deliver(errorEvent(coreError(ErrCodeNotJoined, ErrNotJoined.Error())))
		return
	}

	var err *CoreError
	switch cmd.Kind {
	case CommandJoin:
		err = h.join(ctx, c, cmd)
	case CommandJoinConversation:
		err = h.joinConversation(c, cmd)
	case CommandLeaveConversation:
		err = h.leaveConversation(c, cmd)
	case CommandTyping:
		err = h.typing(ctx, c, cmd)
	case CommandAckDelivered:
		err = h.ack(ctx, c, cmd, h.chat.AcknowledgeDelivered)
	case CommandAckRead:
		err = h.ack(ctx, c, cmd, h.chat.MarkRead)
	default:
		err = coreError(ErrCodeBadRequest, "unknown command")
	}
	if err != nil {
		c.deliver(errorEvent(err))
	}
}

func (h *Hub) join(ctx context.Context, c *Client, cmd *Command) *CoreError {
	if cmd.UserID != "" && cmd.UserID != c.UserID() {
		return coreError(ErrCodeForbidden, "cannot join as another user")
	}
	if !c.markJoined() {
		return coreError(ErrCodeAlreadyJoined, ErrAlreadyJoined.Error())
	}

	first, err := h.registry.Connect(ctx, c)
	if err != nil {
		// the local table is updated before the shared one; fan-out still works here
		h.log.Warn().Err(err).Str("user_id", c.UserID()).Msg("presence connect")
	}
	c.deliver(replyEvent(proto.EventJoined, proto.Joined{
		UserID:       c.UserID(),
		ConnectionID: c.ID(),
		Protocol:     proto.ProtocolVersion,
	}))

	if first {
		h.publish(ctx, events.UserOnline, events.Target{Everyone: true, ExcludeUser: c.UserID()}, proto.Presence{
			UserID:    c.UserID(),
			Timestamp: h.now().UTC(),
		})
	}

	if n, err := h.chat.DeliverPending(ctx, c.UserID()); err != nil {
		h.log.Warn().Err(err).Str("user_id", c.UserID()).Msg("deliver pending messages")
	} else if n > 0 {
		h.log.Debug().Int("count", n).Str("user_id", c.UserID()).Msg("delivered pending messages")
	}

	h.log.Info().Str("user_id", c.UserID()).Str("client_id", c.ID()).Bool("first", first).Msg("client joined")
	return nil
}

func (h *Hub) joinConversation(c *Client, cmd *Command) *CoreError {
	if err := h.chat.CheckMembership(cmd.ConversationID, c.UserID()); err != nil {
		return fromError(err)
	}
	h.router.Join(cmd.ConversationID, c)
	c.deliver(replyEvent(proto.EventConversationJoined, proto.ConversationData{ConversationID: cmd.ConversationID}))
	return nil
}

func (h *Hub) leaveConversation(c *Client, cmd *Command) *CoreError {
	if !h.router.Leave(cmd.ConversationID, c) {
		return coreError(ErrCodeNotInConversation, "not in conversation")
	}
	c.deliver(replyEvent(proto.EventConversationLeft, proto.ConversationData{ConversationID: cmd.ConversationID}))
	return nil
}

func (h *Hub) typing(ctx context.Context, c *Client, cmd *Command) *CoreError {
	if err := h.chat.CheckMembership(cmd.ConversationID, c.UserID()); err != nil {
		return fromError(err)
	}
	h.publish(ctx, events.UserTyping, events.Target{Conversation: cmd.ConversationID, ExcludeConn: c.ID()}, proto.UserTyping{
		UserID:         c.UserID(),
		ConversationID: cmd.ConversationID,
		IsTyping:       cmd.IsTyping,
		Timestamp:      h.now().UTC(),
	})
	return nil
}

type ackFunc func(ctx context.Context, userID, conversationID string, messageIDs []string) ([]*store.Message, error)

func (h *Hub) ack(ctx context.Context, c *Client, cmd *Command, fn ackFunc) *CoreError {
	if _, err := fn(events.WithSource(ctx, c.ID()), c.UserID(), cmd.ConversationID, cmd.MessageIDs); err != nil {
		ce := fromError(err)
		if ce.Code == ErrCodeInternal {
			h.log.Error().Err(err).Str("conversation_id", cmd.ConversationID).Msg("acknowledge messages")
		}
		return ce
	}
	return nil
}

// Disconnect removes c from every channel and from presence, announces the user
// offline when it was their last connection, and closes c.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	h.router.LeaveAll(c)
	if c.Joined() {
		last, err := h.registry.Disconnect(ctx, c)
		if err != nil {
			h.log.Warn().Err(err).Str("user_id", c.UserID()).Msg("presence disconnect")
		}
		if last {
			h.publish(ctx, events.UserOffline, events.Target{Everyone: true, ExcludeUser: c.UserID()}, proto.Presence{
				UserID:    c.UserID(),
				Timestamp: h.now().UTC(),
			})
		}
	}
	c.Close()
	h.log.Info().Str("user_id", c.UserID()).Str("client_id", c.ID()).Msg("client disconnected")
}

func (h *Hub) publish(ctx context.Context, name string, target events.Target, payload any) {
	ev, err := events.New(name, target, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", name).Msg("encode event")
		return
	}
	if err := h.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		h.log.Warn().Err(err).Str("event", name).Msg("publish event")
	}
}
