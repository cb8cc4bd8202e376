package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/auth"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/config"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/core"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/metrics"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/seed"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store/sqlite"
)

const testFixtures = `
users:
  - {id: alice, username: alice, displayName: Alice Anders, isVerified: true}
  - {id: bob, username: bob}
  - {id: carol, username: carol}
products:
  - id: p1
    name: Linen Shirt
    brand: Northwind
    price: 25.5
    images: [https://cdn.example.com/p1.jpg]
  - {id: p2, name: Canvas Tote, price: 10}
carts:
  - id: cart-alice
    userId: alice
    active: true
    currency: USD
    items:
      - {productId: p1, quantity: 2, price: 25.5}
      - {productId: p2, quantity: 1, price: 10}
`

type testEnv struct {
	ts       *httptest.Server
	store    store.Store
	auth     *auth.Service
	registry *presence.Local
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	disabledLogger := zerolog.New(nil)
	logger := &disabledLogger

	cfg := config.Default()
	cfg.Server.WSRateLimit = 0
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fixtures, err := seed.Parse([]byte(testFixtures))
	if err != nil {
		t.Fatalf("parse fixtures: %v", err)
	}
	if _, err := seed.Apply(context.Background(), st, fixtures); err != nil {
		t.Fatalf("apply fixtures: %v", err)
	}

	registry := presence.NewLocal()
	bus := events.NewLocalBus()
	m := metrics.New(registry)
	router := core.NewRouter(registry, m, logger)
	bus.Subscribe(router.Route)

	svc := chat.NewService(st, bus, logger, chat.WithObserver(m))
	sched := delivery.NewScheduler(delivery.ModePresence, 50*time.Millisecond, registry, svc.ConfirmDelivered, logger)
	svc.SetScheduler(sched)
	t.Cleanup(sched.Close)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	server := NewServer(Dependencies{
		Hub:      core.NewHub(registry, router, bus, svc, logger),
		Chat:     svc,
		Auth:     authService,
		Users:    st,
		Presence: registry,
		Metrics:  m.Handler(),
	}, &cfg, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService, registry: registry}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.auth.IssueToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("issue token for %s: %v", userID, err)
	}
	return token
}

// do sends an authenticated JSON request and decodes the response into out when
// out is not nil.
func (e *testEnv) do(t *testing.T, method, path, userID string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, userID string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + e.token(t, userID)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readEvent reads until the named event arrives. name "error" waits for an error frame.
func readEvent(t *testing.T, conn *websocket.Conn, name string) outbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %q: %v", name, err)
		}
		if name == proto.OutboundTypeError && out.Type == proto.OutboundTypeError {
			return out
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == name {
			return out
		}
	}
}

func join(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Protocol: proto.ProtocolVersion})
	readEvent(t, conn, proto.EventJoined)
}

// waitOnline polls the registry until userID has a live connection.
func (e *testEnv) waitOnline(t *testing.T, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if online, _ := e.registry.IsOnline(context.Background(), userID); online {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never came online", userID)
}
