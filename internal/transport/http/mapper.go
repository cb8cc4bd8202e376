package http

import (
	"encoding/json"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/core"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
)

const (
	errCodeInvalidMessage     = "invalid_message"
	errCodeUnsupportedVersion = "unsupported_version"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if perr := decodeData(inbound.Data, &join); perr != nil {
			return nil, perr
		}
		if join.Protocol != 0 && join.Protocol != proto.ProtocolVersion {
			return nil, &proto.Error{Code: errCodeUnsupportedVersion, Msg: "unsupported protocol version"}
		}
		return &core.Command{Kind: core.CommandJoin, UserID: join.UserID}, nil
	case proto.InboundTypeJoinConversation, proto.InboundTypeLeaveConversation:
		var data proto.ConversationData
		if perr := decodeData(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		if data.ConversationID == "" {
			return nil, conversationRequired()
		}
		kind := core.CommandJoinConversation
		if inbound.Type == proto.InboundTypeLeaveConversation {
			kind = core.CommandLeaveConversation
		}
		return &core.Command{Kind: kind, ConversationID: data.ConversationID}, nil
	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if perr := decodeData(inbound.Data, &typing); perr != nil {
			return nil, perr
		}
		if typing.ConversationID == "" {
			return nil, conversationRequired()
		}
		return &core.Command{
			Kind:           core.CommandTyping,
			ConversationID: typing.ConversationID,
			IsTyping:       typing.IsTyping,
		}, nil
	case proto.InboundTypeMessageDelivered, proto.InboundTypeMessageRead:
		var ack proto.AckData
		if perr := decodeData(inbound.Data, &ack); perr != nil {
			return nil, perr
		}
		if ack.ConversationID == "" {
			return nil, conversationRequired()
		}
		kind := core.CommandAckDelivered
		if inbound.Type == proto.InboundTypeMessageRead {
			kind = core.CommandAckRead
		}
		return &core.Command{
			Kind:           kind,
			ConversationID: ack.ConversationID,
			MessageIDs:     ack.IDs(),
		}, nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func decodeData(data json.RawMessage, v any) *proto.Error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid data"}
	}
	return nil
}

func conversationRequired() *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversationId is required"}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Name,
			Data:  event.Data,
		}
	}
}
