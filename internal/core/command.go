package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin registers the connection as online for its user.
	CommandJoin CommandKind = iota
	// CommandJoinConversation subscribes the client to a conversation channel.
	CommandJoinConversation
	// CommandLeaveConversation unsubscribes the client from a conversation channel.
	CommandLeaveConversation
	// CommandTyping toggles the typing indicator in a conversation.
	CommandTyping
	// CommandAckDelivered acknowledges delivery of messages.
	CommandAckDelivered
	// CommandAckRead acknowledges reading messages.
	CommandAckRead
)

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	UserID         string
	ConversationID string
	IsTyping       bool
	MessageIDs     []string
}
