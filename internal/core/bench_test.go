package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
)

func benchmarkConversationBroadcast(b *testing.B, recipients int) {
	logger := zerolog.New(nil)
	registry := presence.NewLocal()
	router := NewRouter(registry, nil, &logger)

	clients := make([]*Client, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := NewClient(fmt.Sprintf("c%d", i), "bob", 0)
		if _, err := registry.Connect(context.Background(), c); err != nil {
			b.Fatalf("connect: %v", err)
		}
		router.Join("alice_bob", c)
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid queue backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	ev := events.Event{
		Name:    events.UserTyping,
		Target:  events.Target{Conversation: "alice_bob", Users: []string{"bob"}},
		Payload: json.RawMessage(`{"userId":"alice","isTyping":true}`),
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		router.Route(ev)
		<-target.Events
	}
}

func BenchmarkConversationBroadcast_10(b *testing.B)  { benchmarkConversationBroadcast(b, 10) }
func BenchmarkConversationBroadcast_100(b *testing.B) { benchmarkConversationBroadcast(b, 100) }
func BenchmarkConversationBroadcast_500(b *testing.B) { benchmarkConversationBroadcast(b, 500) }
