package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/pulse/internal/domain"
	"github.com/nfrund/pulse/internal/messaging"
	"github.com/nfrund/pulse/internal/middleware"
	"github.com/nfrund/pulse/internal/presence"
	"github.com/nfrund/pulse/internal/pubsub"
)

// bridgeFixture runs the full real-time path against a live HTTP server:
// auth-resolved upgrade, lifecycle loop, bus, and fan-out router.
type bridgeFixture struct {
	t        *testing.T
	server   *httptest.Server
	bridge   *Bridge
	bus      *pubsub.WatermillBridge
	registry *presence.Registry
	cancel   context.CancelFunc
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	registry := presence.NewRegistry()
	bus := pubsub.NewWatermillBridge()
	bridge := NewBridge(registry, bus)
	go bridge.Run()

	ctx, cancel := context.WithCancel(context.Background())
	router := NewRouter(registry)
	require.NoError(t, router.Attach(ctx, bus))

	e := echo.New()
	// Stand-in for the session auth middleware: the test names the user in a
	// header, the handler still only trusts what the middleware resolved.
	e.GET("/ws", bridge.Handler(), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get("X-Test-User")
			if userID == "" {
				return echo.ErrUnauthorized
			}
			c.Set(middleware.UserContextKey, &domain.User{ID: userID, Username: userID})
			return next(c)
		}
	})

	server := httptest.NewServer(e)

	f := &bridgeFixture{
		t:        t,
		server:   server,
		bridge:   bridge,
		bus:      bus,
		registry: registry,
		cancel:   cancel,
	}
	t.Cleanup(func() {
		server.Close()
		cancel()
		bridge.Shutdown()
		bus.Close()
	})
	return f
}

func (f *bridgeFixture) dial(userID string) *gws.Conn {
	f.t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	header := map[string][]string{"X-Test-User": {userID}}
	conn, _, err := gws.DefaultDialer.Dial(wsURL, header)
	require.NoError(f.t, err)
	return conn
}

// readEnvelope reads the next frame, failing the test after a timeout.
func readEnvelope(t *testing.T, conn *gws.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

// expectSilence asserts no frame arrives within the window.
func expectSilence(t *testing.T, conn *gws.Conn, window time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	_, frame, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got %s", frame)
	}
}

func presenceUsers(t *testing.T, env Envelope) []string {
	t.Helper()
	require.Equal(t, EventPresenceChanged, env.Type)
	var payload PresenceChangedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload.UserIDs
}

func TestBridge_ConnectionReadyAndPresence(t *testing.T) {
	f := newBridgeFixture(t)

	alice := f.dial("user:alice")
	defer alice.Close()

	env := readEnvelope(t, alice)
	require.Equal(t, EventConnectionReady, env.Type)
	var ready ConnectionReadyPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ready))
	assert.NotEmpty(t, ready.ConnectionID)

	assert.Equal(t, []string{"user:alice"}, presenceUsers(t, readEnvelope(t, alice)))

	bob := f.dial("user:bob")
	defer bob.Close()

	// Bob gets his handshake, then the snapshot including both users.
	require.Equal(t, EventConnectionReady, readEnvelope(t, bob).Type)
	assert.Equal(t, []string{"user:alice", "user:bob"}, presenceUsers(t, readEnvelope(t, bob)))

	// Alice sees the same snapshot from her existing connection.
	assert.Equal(t, []string{"user:alice", "user:bob"}, presenceUsers(t, readEnvelope(t, alice)))
}

func TestBridge_DisconnectUpdatesPresence(t *testing.T) {
	f := newBridgeFixture(t)

	alice := f.dial("user:alice")
	defer alice.Close()
	readEnvelope(t, alice) // connection_ready
	readEnvelope(t, alice) // presence [alice]

	bob := f.dial("user:bob")
	readEnvelope(t, bob)
	readEnvelope(t, bob)
	readEnvelope(t, alice) // presence [alice, bob]

	require.NoError(t, bob.Close())

	assert.Eventually(t, func() bool {
		users := f.registry.OnlineUserIDs()
		return len(users) == 1 && users[0] == "user:alice"
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"user:alice"}, presenceUsers(t, readEnvelope(t, alice)))
}

func TestBridge_MessageFanOutExcludesOriginConnection(t *testing.T) {
	f := newBridgeFixture(t)

	alice := f.dial("user:alice")
	defer alice.Close()
	env := readEnvelope(t, alice)
	var ready ConnectionReadyPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ready))
	readEnvelope(t, alice) // presence

	bob := f.dial("user:bob")
	defer bob.Close()
	readEnvelope(t, bob)
	readEnvelope(t, bob)
	readEnvelope(t, alice)

	event := messaging.MessageCreatedEvent{
		Message: &domain.Message{
			ID:         "message:1",
			SenderID:   "user:alice",
			ReceiverID: "user:bob",
			Text:       "hi bob",
		},
		TempID:       "temp-1",
		OriginConnID: ready.ConnectionID,
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(context.Background(), pubsub.Message{
		Topic:   messaging.TopicMessageCreated,
		UserID:  "user:alice",
		Payload: payload,
	}))

	// Bob receives the broadcast with the correlation id echoed.
	got := readEnvelope(t, bob)
	require.Equal(t, EventMessageCreated, got.Type)
	var created MessageCreatedPayload
	require.NoError(t, json.Unmarshal(got.Payload, &created))
	assert.Equal(t, "message:1", created.Message.ID)
	assert.Equal(t, "temp-1", created.TempID)

	// Alice's only connection originated the send; it gets nothing.
	expectSilence(t, alice, 300*time.Millisecond)
}

func TestBridge_TypingRelayUsesVerifiedSender(t *testing.T) {
	f := newBridgeFixture(t)

	alice := f.dial("user:alice")
	defer alice.Close()
	readEnvelope(t, alice)
	readEnvelope(t, alice)

	bob := f.dial("user:bob")
	defer bob.Close()
	readEnvelope(t, bob)
	readEnvelope(t, bob)
	readEnvelope(t, alice)

	require.NoError(t, alice.WriteJSON(TypingFrame{
		Type:       EventTyping,
		ReceiverID: "user:bob",
		IsTyping:   true,
	}))

	env := readEnvelope(t, bob)
	require.Equal(t, EventTyping, env.Type)
	var typing TypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &typing))
	// The sender id comes from the connection's verified user.
	assert.Equal(t, "user:alice", typing.SenderID)
	assert.True(t, typing.IsTyping)
}

func TestBridge_RejectsUnidentifiedUpgrade(t *testing.T) {
	f := newBridgeFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

// nopPublisher satisfies pubsub.Publisher for tests that never publish.
type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, msg pubsub.Message) error { return nil }

func (nopPublisher) Close() error { return nil }

func TestBridge_ShutdownUnblocksLifecycleEnqueues(t *testing.T) {
	bridge := NewBridge(presence.NewRegistry(), nopPublisher{})
	bridge.Shutdown()

	client := &Client{
		id:     "conn-late",
		userID: "user:late",
		send:   make(chan []byte, 1),
		bridge: bridge,
	}

	// A registration that arrives after shutdown is refused instead of
	// blocking on a loop that no longer drains the channel.
	assert.False(t, bridge.enqueueRegister(client))

	done := make(chan struct{})
	go func() {
		bridge.enqueueDeregister(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deregister blocked after shutdown")
	}

	// The send channel was closed so the write pump can exit.
	_, open := <-client.send
	assert.False(t, open)
}
