// Package chat implements the messaging operations: sending, editing, deleting,
// reacting, reading and searching direct messages, and the delivery transitions
// that follow them. Every change is persisted first and then announced as a domain
// event; announcing is best effort.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/reaction"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

const (
	// MaxContentLength bounds message content in code points.
	MaxContentLength = 2000

	DefaultMessageLimit = 50
	DefaultListLimit    = 20
	MaxLimit            = 100
)

// Scheduler arranges the sent -> delivered transition of new messages.
type Scheduler interface {
	Schedule(messageID, recipient string)
	Mode() delivery.Mode
}

// Observer is told about persisted changes. It must not block.
type Observer interface {
	MessageSent(t store.MessageType)
	StatusAdvanced(s delivery.Status, n int)
}

type nopObserver struct{}

func (nopObserver) MessageSent(store.MessageType)      {}
func (nopObserver) StatusAdvanced(delivery.Status, int) {}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the UUIDv7 message id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithObserver installs an Observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service implements the messaging operations.
type Service struct {
	users     store.UserStore
	catalog   store.CatalogStore
	messages  store.MessageStore
	events    events.Publisher
	scheduler Scheduler
	observer  Observer
	now       func() time.Time
	newID     func() string
	log       *zerolog.Logger
}

// NewService builds a service over st that announces changes on pub.
func NewService(st store.Store, pub events.Publisher, logger *zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		users:    st,
		catalog:  st,
		messages: st,
		events:   pub,
		observer: nopObserver{},
		now:      time.Now,
		newID:    newMessageID,
		log:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetScheduler installs the delivery scheduler. The scheduler calls back into
// ConfirmDelivered, so it is created after the service. Call before serving.
func (s *Service) SetScheduler(sched Scheduler) {
	s.scheduler = sched
}

// Mode returns the delivery confirmation mode in effect.
func (s *Service) Mode() delivery.Mode {
	if s.scheduler == nil {
		return delivery.ModeAck
	}
	return s.scheduler.Mode()
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// SendRequest describes a new message.
type SendRequest struct {
	Sender        string
	Recipient     string
	Content       string
	Type          store.MessageType
	Media         []store.Media
	ReplyTo       string
	SharedContent *store.SharedContent
}

// Send validates and persists a message, pushes it to the recipient and schedules
// its delivery confirmation. It does not wait for delivery.
func (s *Service) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	msg, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	s.observer.MessageSent(msg.Type)

	s.publish(ctx, events.NewMessage, events.ToUsers(msg.Recipient), proto.NewMessageEvent{
		Message:        s.View(ctx, msg),
		ConversationID: msg.ConversationID,
	})
	if s.scheduler != nil {
		s.scheduler.Schedule(msg.ID, msg.Recipient)
	}

	s.log.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", msg.ConversationID).
		Str("type", string(msg.Type)).
		Msg("message sent")
	return msg, nil
}

func (s *Service) prepare(ctx context.Context, req SendRequest) (*store.Message, error) {
	if req.Recipient == "" {
		return nil, ErrRecipientRequired
	}
	content, err := checkContent(req.Content)
	if err != nil {
		return nil, err
	}

	typ := req.Type
	if typ == "" {
		typ = store.MessageText
		if kind := req.SharedContent.Kind(); kind != "" {
			typ = kind
		}
	}
	if !typ.Valid() {
		return nil, ErrInvalidMessageType
	}
	if err := checkPayload(typ, req.Media, req.SharedContent); err != nil {
		return nil, err
	}

	key, err := conversation.Derive(req.Sender, req.Recipient)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, req.Recipient); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}

	if req.ReplyTo != "" {
		parent, err := s.messages.GetMessage(ctx, req.ReplyTo)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrReplyOutside
		case err != nil:
			return nil, fmt.Errorf("lookup reply target: %w", err)
		case parent.ConversationID != key.String():
			return nil, ErrReplyOutside
		}
	}

	now := s.clock()
	return &store.Message{
		ID:             s.newID(),
		ConversationID: key.String(),
		Sender:         req.Sender,
		Recipient:      req.Recipient,
		Content:        content,
		Type:           typ,
		Media:          req.Media,
		SharedContent:  req.SharedContent,
		ReplyTo:        req.ReplyTo,
		State:          delivery.NewState(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func checkContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// checkPayload keeps media and shared content consistent with the message type.
func checkPayload(t store.MessageType, media []store.Media, shared *store.SharedContent) error {
	switch {
	case len(media) > 0 && !t.IsMedia():
		return ErrPayloadMismatch
	case shared != nil && shared.Kind() != t:
		return ErrPayloadMismatch
	case shared == nil && (t == store.MessageCart || t == store.MessageProduct || t == store.MessagePost):
		return ErrPayloadMismatch
	}
	return nil
}

// Edit replaces the content of a message. Only the sender may edit; the first
// edit keeps the original content.
func (s *Service) Edit(ctx context.Context, messageID, editor, content string) (*store.Message, error) {
	content, err := checkContent(content)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	msg, err := s.messages.UpdateMessage(ctx, messageID, func(m *store.Message) error {
		if m.Sender != editor {
			return ErrNotSender
		}
		if m.IsDeleted {
			return ErrMessageNotFound
		}
		if !m.IsEdited {
			m.OriginalContent = m.Content
		}
		m.Content = content
		m.IsEdited = true
		m.EditedAt = &now
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, updateErr(err)
	}

	s.publish(ctx, events.MessageEdited, events.ToUsers(msg.Recipient), proto.MessageEdited{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		NewContent:     msg.Content,
		EditedAt:       now,
	})
	return msg, nil
}

// Delete soft-deletes a message. Only the sender may delete. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, messageID, requester string) (*store.Message, error) {
	now := s.clock()
	deleted := false
	msg, err := s.messages.UpdateMessage(ctx, messageID, func(m *store.Message) error {
		if m.Sender != requester {
			return ErrNotSender
		}
		if m.IsDeleted {
			return nil
		}
		m.IsDeleted = true
		m.DeletedAt = &now
		m.DeletedBy = requester
		m.UpdatedAt = now
		deleted = true
		return nil
	})
	if err != nil {
		return nil, updateErr(err)
	}

	if deleted {
		s.publish(ctx, events.MessageDeleted, events.ToUsers(msg.Recipient), proto.MessageDeleted{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			DeletedAt:      now,
		})
	}
	return msg, nil
}

// ReactionResult is the outcome of a toggle.
type ReactionResult struct {
	Message *store.Message
	Emoji   string
	Action  reaction.Action
	Counts  map[string]int
}

// ToggleReaction sets, replaces or clears userID's reaction on a message.
func (s *Service) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*ReactionResult, error) {
	emoji = strings.TrimSpace(emoji)
	if err := reaction.Validate(emoji); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmoji, err)
	}

	var action reaction.Action
	now := s.clock()
	msg, err := s.messages.UpdateMessage(ctx, messageID, func(m *store.Message) error {
		if m.Sender != userID && m.Recipient != userID {
			return ErrNotParticipant
		}
		if m.IsDeleted {
			return ErrMessageNotFound
		}
		m.Reactions, action = m.Reactions.Toggle(userID, emoji, now)
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, updateErr(err)
	}

	res := &ReactionResult{Message: msg, Emoji: emoji, Action: action, Counts: msg.Reactions.Counts()}
	other := msg.Recipient
	if userID == msg.Recipient {
		other = msg.Sender
	}
	s.publish(ctx, events.MessageReaction, events.ToUsers(other), proto.MessageReaction{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Emoji:          emoji,
		UserID:         userID,
		Action:         action,
		ReactionCounts: res.Counts,
	})
	return res, nil
}

// GetMessage returns a message, soft-deleted or not, to either participant.
func (s *Service) GetMessage(ctx context.Context, messageID, requester string) (*store.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.Sender != requester && msg.Recipient != requester {
		return nil, ErrNotParticipant
	}
	return msg, nil
}

func updateErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrMessageNotFound
	case IsCallerError(err):
		return err
	default:
		return fmt.Errorf("update message: %w", err)
	}
}

// membership parses conversationID and checks that requester is one of its
// participants. A malformed id cannot name a conversation of requester, so it is
// treated the same way as a foreign one.
func membership(conversationID, requester string) (conversation.Key, error) {
	key, err := conversation.Parse(conversationID)
	if err != nil || !key.Has(requester) {
		return conversation.Key{}, ErrNotParticipant
	}
	return key, nil
}

// CheckMembership reports ErrNotParticipant unless userID takes part in conversationID.
func (s *Service) CheckMembership(conversationID, userID string) error {
	_, err := membership(conversationID, userID)
	return err
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// publish announces an event. Failures are logged; the change it describes is
// already persisted.
func (s *Service) publish(ctx context.Context, name string, target events.Target, payload any) {
	ev, err := events.New(name, target, payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", name).Msg("encode event")
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn().Err(err).Str("event", name).Msg("publish event")
	}
}
