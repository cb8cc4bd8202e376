package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventBroadcast carries a domain event fanned out by the router.
	EventBroadcast EventKind = iota
	// EventReply answers a command of this client only.
	EventReply
	// EventError notifies the client about a rejected command.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	Name string
	// Data is a json.RawMessage for broadcasts, shared by every recipient.
	Data  any
	Error *CoreError
}

func replyEvent(name string, data any) *Event {
	return &Event{Kind: EventReply, Name: name, Data: data}
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
