package chat

import (
	"context"
	"errors"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// profiles resolves participant profiles, each user at most once per view.
type profiles struct {
	svc  *Service
	seen map[string]*proto.Participant
}

func (s *Service) profiles() *profiles {
	return &profiles{svc: s, seen: make(map[string]*proto.Participant)}
}

func (p *profiles) get(ctx context.Context, userID string) *proto.Participant {
	if pt, ok := p.seen[userID]; ok {
		return pt
	}
	var pt *proto.Participant
	u, err := p.svc.users.GetUser(ctx, userID)
	switch {
	case err == nil:
		pt = proto.NewParticipant(u)
	case !errors.Is(err, store.ErrNotFound):
		p.svc.log.Warn().Err(err).Str("user_id", userID).Msg("resolve participant profile")
	}
	p.seen[userID] = pt
	return pt
}

func (p *profiles) message(ctx context.Context, m *store.Message) proto.Message {
	out := proto.NewMessage(m)
	out.SenderInfo = p.get(ctx, m.Sender)
	out.RecipientInfo = p.get(ctx, m.Recipient)
	return out
}

// View wraps m for clients with the sender and recipient profiles.
func (s *Service) View(ctx context.Context, m *store.Message) proto.Message {
	return s.profiles().message(ctx, m)
}

// Views is View over a page of messages.
func (s *Service) Views(ctx context.Context, msgs []*store.Message) []proto.Message {
	p := s.profiles()
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, p.message(ctx, m))
	}
	return out
}
