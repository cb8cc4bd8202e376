package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// MarkRead is an explicit read acknowledgement by reader. Empty messageIDs means
// every message addressed to reader in the conversation.
func (s *Service) MarkRead(ctx context.Context, reader, conversationID string, messageIDs []string) ([]*store.Message, error) {
	key, err := membership(conversationID, reader)
	if err != nil {
		return nil, err
	}
	read, err := s.markRead(ctx, reader, key, messageIDs)
	if err != nil {
		return nil, err
	}
	s.statusUpdated(ctx, key, reader, delivery.StatusRead, read)
	return read, nil
}

func (s *Service) markRead(ctx context.Context, reader string, key conversation.Key, messageIDs []string) ([]*store.Message, error) {
	now := s.clock()
	read, err := s.messages.AdvanceStatus(ctx, store.StatusFilter{
		Recipient:      reader,
		ConversationID: key.String(),
		IDs:            messageIDs,
	}, delivery.StatusRead, now)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if len(read) == 0 {
		return nil, nil
	}
	s.observer.StatusAdvanced(delivery.StatusRead, len(read))

	other, _ := key.Other(reader)
	s.publish(ctx, events.MessagesRead, events.ToUsers(other), proto.MessagesRead{
		ConversationID: key.String(),
		ReadBy:         reader,
		MessageIDs:     idsOf(read),
		ReadAt:         now,
	})
	return read, nil
}

// AcknowledgeDelivered is an explicit delivery acknowledgement by recipient.
// Empty messageIDs means every message addressed to recipient in the conversation.
func (s *Service) AcknowledgeDelivered(ctx context.Context, recipient, conversationID string, messageIDs []string) ([]*store.Message, error) {
	key, err := membership(conversationID, recipient)
	if err != nil {
		return nil, err
	}
	delivered, err := s.advanceDelivered(ctx, store.StatusFilter{
		Recipient:      recipient,
		ConversationID: key.String(),
		IDs:            messageIDs,
	})
	if err != nil {
		return nil, err
	}
	s.statusUpdated(ctx, key, recipient, delivery.StatusDelivered, delivered)
	return delivered, nil
}

// ConfirmDelivered moves one message from sent to delivered on behalf of the
// delivery scheduler. Confirming an already delivered or read message is a no-op.
func (s *Service) ConfirmDelivered(ctx context.Context, messageID string) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("get message: %w", err)
	}
	_, err = s.advanceDelivered(ctx, store.StatusFilter{
		Recipient: msg.Recipient,
		IDs:       []string{msg.ID},
	})
	return err
}

// DeliverPending confirms every message still waiting for userID, typically when
// userID comes online. It does nothing when only explicit acknowledgements count.
func (s *Service) DeliverPending(ctx context.Context, userID string) (int, error) {
	if s.Mode() == delivery.ModeAck {
		return 0, nil
	}
	delivered, err := s.advanceDelivered(ctx, store.StatusFilter{Recipient: userID})
	return len(delivered), err
}

// advanceDelivered persists sent -> delivered and tells each sender.
func (s *Service) advanceDelivered(ctx context.Context, filter store.StatusFilter) ([]*store.Message, error) {
	delivered, err := s.messages.AdvanceStatus(ctx, filter, delivery.StatusDelivered, s.clock())
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	if len(delivered) == 0 {
		return nil, nil
	}
	s.observer.StatusAdvanced(delivery.StatusDelivered, len(delivered))

	for _, m := range delivered {
		at := m.UpdatedAt
		if m.DeliveredAt != nil {
			at = *m.DeliveredAt
		}
		s.publish(ctx, events.MessageDelivered, events.ToUsers(m.Sender), proto.MessageDelivered{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			DeliveredAt:    at,
		})
	}
	return delivered, nil
}

// statusUpdated tells the conversation channel about an explicit acknowledgement,
// skipping the connection it came from.
func (s *Service) statusUpdated(ctx context.Context, key conversation.Key, by string, status delivery.Status, changed []*store.Message) {
	if len(changed) == 0 {
		return
	}
	target := events.Target{Conversation: key.String(), ExcludeConn: events.Source(ctx)}
	s.publish(ctx, events.MessageStatusUpdated, target, proto.MessageStatusUpdated{
		ConversationID: key.String(),
		MessageIDs:     idsOf(changed),
		Status:         string(status),
		UpdatedBy:      by,
		Timestamp:      s.clock(),
	})
}

func idsOf(msgs []*store.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
