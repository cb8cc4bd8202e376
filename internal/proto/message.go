package proto

import (
	"encoding/json"
	"time"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/reaction"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin              = "join"
	InboundTypeJoinConversation  = "join-conversation"
	InboundTypeLeaveConversation = "leave-conversation"
	InboundTypeTyping            = "typing"
	InboundTypeMessageDelivered  = "message-delivered"
	InboundTypeMessageRead       = "message-read"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	// Replies that only go to the requesting connection.
	EventJoined             = "joined"
	EventConversationJoined = "conversation-joined"
	EventConversationLeft   = "conversation-left"
)

// JoinData announces the user behind a connection. UserID may be omitted; when
// present it must match the authenticated user.
type JoinData struct {
	UserID   string `json:"userId,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// ConversationData names a conversation channel.
type ConversationData struct {
	ConversationID string `json:"conversationId"`
}

// TypingData toggles the typing indicator in a conversation.
type TypingData struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// AckData acknowledges one message, or several with MessageIDs.
type AckData struct {
	MessageID      string   `json:"messageId,omitempty"`
	MessageIDs     []string `json:"messageIds,omitempty"`
	ConversationID string   `json:"conversationId"`
}

// IDs returns every acknowledged message id.
func (a AckData) IDs() []string {
	ids := append([]string(nil), a.MessageIDs...)
	if a.MessageID != "" {
		ids = append(ids, a.MessageID)
	}
	return ids
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Participant is the public profile of a message's sender or recipient.
type Participant struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	IsVerified  bool   `json:"isVerified"`
}

// NewParticipant builds the public profile of u.
func NewParticipant(u *store.User) *Participant {
	return &Participant{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		IsVerified:  u.IsVerified,
	}
}

// Message is the client view of a stored message. It repeats the id as _id for
// clients written against the document-store shape. The profiles are omitted when
// the user cannot be resolved.
type Message struct {
	LegacyID string `json:"_id"`
	*store.Message
	SenderInfo    *Participant `json:"senderInfo,omitempty"`
	RecipientInfo *Participant `json:"recipientInfo,omitempty"`
}

// NewMessage wraps m for the wire without profiles.
func NewMessage(m *store.Message) Message {
	return Message{LegacyID: m.ID, Message: m}
}

// NewMessageEvent is the payload of new_message.
type NewMessageEvent struct {
	Message        Message `json:"message"`
	ConversationID string  `json:"conversationId"`
}

// Joined answers a join.
type Joined struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	Protocol     int    `json:"protocol"`
}

type MessagesRead struct {
	ConversationID string    `json:"conversationId"`
	ReadBy         string    `json:"readBy"`
	MessageIDs     []string  `json:"messageIds,omitempty"`
	ReadAt         time.Time `json:"readAt"`
}

type MessageDelivered struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

// MessageStatusUpdated is sent to a conversation channel after an explicit
// acknowledgement.
type MessageStatusUpdated struct {
	ConversationID string    `json:"conversationId"`
	MessageIDs     []string  `json:"messageIds"`
	Status         string    `json:"status"`
	UpdatedBy      string    `json:"updatedBy"`
	Timestamp      time.Time `json:"timestamp"`
}

type MessageReaction struct {
	MessageID      string          `json:"messageId"`
	ConversationID string          `json:"conversationId"`
	Emoji          string          `json:"emoji"`
	UserID         string          `json:"userId"`
	Action         reaction.Action `json:"action"`
	ReactionCounts map[string]int  `json:"reactionCounts"`
}

type MessageEdited struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	NewContent     string    `json:"newContent"`
	EditedAt       time.Time `json:"editedAt"`
}

type MessageDeleted struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	DeletedAt      time.Time `json:"deletedAt"`
}

type UserTyping struct {
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      time.Time `json:"timestamp"`
}

// Presence is the payload of user-online and user-offline.
type Presence struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type CartShared struct {
	Message Message           `json:"message"`
	Cart    *store.SharedCart `json:"cart"`
}

type ProductShared struct {
	Message Message           `json:"message"`
	Product *store.ProductRef `json:"product"`
}
