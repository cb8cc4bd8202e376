package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, name string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Name == name {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event %q not received", name)
	return nil
}

func mustError(t *testing.T, ch <-chan *Event, code string) {
	t.Helper()

	select {
	case ev := <-ch:
		if ev == nil || ev.Kind != EventError || ev.Error == nil || ev.Error.Code != code {
			t.Fatalf("expected %s error, got %+v", code, ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s error not received", code)
	}
}

// noEvent drains ch and fails if an event called name is queued. Fan-out on the
// local bus is synchronous, so everything is queued by the time a call returns.
func noEvent(t *testing.T, ch <-chan *Event, name string) {
	t.Helper()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Name == name {
				t.Fatalf("unexpected event %q: %+v", name, ev)
			}
		default:
			return
		}
	}
}

type fakeMessaging struct {
	mu      sync.Mutex
	pending map[string]int
	acked   map[string][]string
	read    map[string][]string
	sources []string
	failAck error
}

func newFakeMessaging() *fakeMessaging {
	return &fakeMessaging{
		pending: make(map[string]int),
		acked:   make(map[string][]string),
		read:    make(map[string][]string),
	}
}

func (f *fakeMessaging) CheckMembership(conversationID, userID string) error {
	key, err := conversation.Parse(conversationID)
	if err != nil || !key.Has(userID) {
		return chat.ErrNotParticipant
	}
	return nil
}

func (f *fakeMessaging) DeliverPending(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[userID]++
	return 0, nil
}

func (f *fakeMessaging) AcknowledgeDelivered(ctx context.Context, recipient, conversationID string, ids []string) ([]*store.Message, error) {
	if err := f.CheckMembership(conversationID, recipient); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAck != nil {
		return nil, f.failAck
	}
	f.sources = append(f.sources, events.Source(ctx))
	f.acked[recipient] = append(f.acked[recipient], ids...)
	return nil, nil
}

func (f *fakeMessaging) MarkRead(ctx context.Context, reader, conversationID string, ids []string) ([]*store.Message, error) {
	if err := f.CheckMembership(conversationID, reader); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, events.Source(ctx))
	f.read[reader] = append(f.read[reader], ids...)
	return nil, nil
}

type countingMetrics struct {
	mu      sync.Mutex
	fanned  map[string]int
	dropped map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{fanned: make(map[string]int), dropped: make(map[string]int)}
}

func (m *countingMetrics) EventFannedOut(name string, n int) {
	m.mu.Lock()
	m.fanned[name] += n
	m.mu.Unlock()
}

func (m *countingMetrics) EventDropped(name string) {
	m.mu.Lock()
	m.dropped[name]++
	m.mu.Unlock()
}

type testHub struct {
	hub       *Hub
	bus       *events.LocalBus
	registry  *presence.Local
	messaging *fakeMessaging
	metrics   *countingMetrics
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()

	logger := zerolog.New(nil)
	th := &testHub{
		bus:       events.NewLocalBus(),
		registry:  presence.NewLocal(),
		messaging: newFakeMessaging(),
		metrics:   newCountingMetrics(),
	}
	router := NewRouter(th.registry, th.metrics, &logger)
	th.bus.Subscribe(router.Route)
	th.hub = NewHub(th.registry, router, th.bus, th.messaging, &logger)
	return th
}

// join connects a client for userID and consumes its join reply.
func (th *testHub) join(t *testing.T, id, userID string) *Client {
	t.Helper()
	c := NewClient(id, userID, 0)
	th.hub.Handle(context.Background(), c, &Command{Kind: CommandJoin, UserID: userID})
	mustEvent(t, c.Events, proto.EventJoined)
	return c
}
