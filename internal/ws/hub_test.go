package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bridge-service/internal/models"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	info := ConnInfo{ConnID: "c1", Viewer: "alice", ConnectedAt: time.Now()}
	hub.AddClient(1, nil, info)
	if len(hub.eventRooms) != 1 {
		t.Fatalf("expected event room to be created")
	}
	if got, ok := hub.getConnInfo(1, nil); !ok || got.ConnID != "c1" {
		t.Fatalf("expected conn info to be tracked, got %+v ok=%v", got, ok)
	}

	hub.RemoveClient(1, nil)
	if len(hub.eventRooms) != 0 {
		t.Fatalf("expected event room to be removed")
	}
	if _, ok := hub.getConnInfo(1, nil); ok {
		t.Fatalf("expected conn info to be dropped")
	}
}

func TestHubRemoveClientUnknownRoom(t *testing.T) {
	hub := NewHub()
	hub.RemoveClient(42, nil)
	if len(hub.eventRooms) != 0 {
		t.Fatalf("expected no rooms")
	}
}

// Routed messages and channel lifecycle pushes can fire from many request
// goroutines at once, and gorilla allows only one concurrent writer per
// connection.
func TestHubBroadcastConcurrentWritesSingleConn(t *testing.T) {
	hub := NewHub()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hub.AddClient(1, conn, ConnInfo{ConnID: "c1", Viewer: "alice", ConnectedAt: time.Now()})
		close(registered)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()
	<-registered

	const sends = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sends; i++ {
			if _, _, err := client.ReadMessage(); err != nil {
				t.Errorf("read %d failed: %v", i, err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.BroadcastMessageReceived(1, models.ChatMessage{ID: i, ChannelID: 3, Message: "hello"})
		}(i)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcasts to arrive")
	}
}
