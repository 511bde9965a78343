package pubsub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_PublishSubscribeRoundTrip(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	err := bridge.Subscribe(ctx, "test.topic", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	})
	require.NoError(t, err)

	sent := Message{
		Topic:    "test.topic",
		UserID:   "user:alice",
		Payload:  []byte(`{"hello":"world"}`),
		Metadata: map[string]string{"origin": "conn-1"},
	}
	require.NoError(t, bridge.Publish(ctx, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.Topic, got.Topic)
		assert.Equal(t, sent.UserID, got.UserID)
		assert.Equal(t, sent.Payload, got.Payload)
		assert.Equal(t, "conn-1", got.Metadata["origin"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestWatermillBridge_PreservesPublishOrderPerTopic(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const count = 50
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	err := bridge.Subscribe(ctx, "ordered.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		got = append(got, string(msg.Payload))
		if len(got) == count {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < count; i++ {
		require.NoError(t, bridge.Publish(ctx, Message{
			Topic:   "ordered.topic",
			Payload: []byte(fmt.Sprintf("%d", i)),
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all messages")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < count; i++ {
		assert.Equal(t, fmt.Sprintf("%d", i), got[i])
	}
}

func TestWatermillBridge_TopicsAreIsolated(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hits := make(chan string, 2)
	require.NoError(t, bridge.Subscribe(ctx, "topic.a", func(ctx context.Context, msg Message) error {
		hits <- "a"
		return nil
	}))
	require.NoError(t, bridge.Subscribe(ctx, "topic.b", func(ctx context.Context, msg Message) error {
		hits <- "b"
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "topic.b", Payload: []byte("x")}))

	select {
	case topic := <-hits:
		assert.Equal(t, "b", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	select {
	case topic := <-hits:
		t.Fatalf("unexpected delivery on topic %s", topic)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatermillBridge_HandlerErrorDoesNotRedeliverOrStallTopic(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	delivered := make(chan string, 4)

	err := bridge.Subscribe(ctx, "lossy.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		got = append(got, string(msg.Payload))
		mu.Unlock()
		delivered <- string(msg.Payload)
		if string(msg.Payload) == "poison" {
			return fmt.Errorf("cannot handle payload")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "lossy.topic", Payload: []byte("poison")}))
	require.NoError(t, bridge.Publish(ctx, Message{Topic: "lossy.topic", Payload: []byte("after")}))

	// The failing message must not wedge the topic: the next one still flows.
	for i := 0; i < 2; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	// And the failure is not redelivered.
	select {
	case payload := <-delivered:
		t.Fatalf("unexpected redelivery of %q", payload)
	case <-time.After(200 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"poison", "after"}, got)
}
