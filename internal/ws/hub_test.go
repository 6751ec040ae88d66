package ws

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, orderID string) *Client {
	return &Client{
		hub:     hub,
		orderID: orderID,
		send:    make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, "so-1")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms["so-1"] == nil {
		t.Fatal("order room not created")
	}
	if !hub.rooms["so-1"][client] {
		t.Fatal("client not registered in order room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, "so-1")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if n := hub.Watchers("so-1"); n != 0 {
		t.Fatalf("expected 0 watchers, got %d", n)
	}

	// Room should be cleaned up when empty
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms["so-1"] != nil {
		t.Fatal("order room not cleaned up after last client unregistered")
	}
}

func TestBroadcastToSingleOrder(t *testing.T) {
	hub := startHub(t)

	client1 := mockClient(hub, "so-1")
	client2 := mockClient(hub, "so-2")
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	testPayload := json.RawMessage(`{"status":"cancelled"}`)
	hub.BroadcastToOrder("so-1", Event{Type: "order.updated", Payload: testPayload})

	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != "order.updated" {
			t.Errorf("expected type 'order.updated', got '%s'", received.Type)
		}
		if received.OrderID != "so-1" {
			t.Errorf("expected order_id 'so-1', got '%s'", received.OrderID)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for different order")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastToMultipleClientsOnSameOrder(t *testing.T) {
	hub := startHub(t)

	clients := []*Client{mockClient(hub, "so-1"), mockClient(hub, "so-1"), mockClient(hub, "so-1")}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	if n := hub.Watchers("so-1"); n != 3 {
		t.Fatalf("expected 3 watchers, got %d", n)
	}

	hub.Notify("so-1", "sync.failed", map[string]string{"error_kind": "timeout"})

	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "sync.failed" {
				t.Errorf("client%d: expected type 'sync.failed', got '%s'", i+1, received.Type)
			}
			if string(received.Payload) != `{"error_kind":"timeout"}` {
				t.Errorf("client%d: unexpected payload %s", i+1, received.Payload)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestNotifyUnmarshalablePayloadIsDropped(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, "so-1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Notify("so-1", "order.updated", make(chan int))

	select {
	case <-client.send:
		t.Fatal("unexpected message for unmarshalable payload")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)

	slow := &Client{hub: hub, orderID: "so-1", send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToOrder("so-1", Event{Type: "order.updated", Payload: json.RawMessage(`{}`)})
	time.Sleep(20 * time.Millisecond)

	if n := hub.Watchers("so-1"); n != 0 {
		t.Fatalf("expected slow client to be dropped, %d watchers left", n)
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("expected slow client's send channel to be closed")
	}
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := mockClient(hub, "so-1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	if _, ok := <-client.send; ok {
		t.Fatal("expected send channel to be closed on shutdown")
	}

	// A stopped hub must not block pumps that exit late.
	hub.leave(client)
	if hub.join(mockClient(hub, "so-2")) {
		t.Fatal("join should fail after shutdown")
	}
}
