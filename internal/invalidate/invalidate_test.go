package invalidate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) OnInvalidate(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

func (r *recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		email   string
		want    string
		wantErr bool
	}{
		{name: "https", base: "https://api.noah.example", email: "nurse@example.com", want: "wss://api.noah.example/ws/nurse@example.com"},
		{name: "http with path", base: "http://localhost:8000/api/", email: "a@b.c", want: "ws://localhost:8000/api/ws/a@b.c"},
		{name: "query dropped", base: "https://api.noah.example?x=1", email: "a@b.c", want: "wss://api.noah.example/ws/a@b.c"},
		{name: "unsupported scheme", base: "ftp://api.noah.example", email: "a@b.c", wantErr: true},
		{name: "missing email", base: "https://api.noah.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Endpoint(tt.base, tt.email)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Endpoint(%q, %q) expected error, got %q", tt.base, tt.email, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Endpoint() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Endpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWebSocket_DeliversTopicsAndReconnects(t *testing.T) {
	var connections atomic.Int32
	var paths sync.Map

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.URL.Path, true)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		conn.WriteMessage(websocket.TextMessage, []byte("apps"))
		conn.WriteMessage(websocket.TextMessage, []byte("   "))
		conn.WriteMessage(websocket.BinaryMessage, []byte("ignored"))
		conn.WriteMessage(websocket.TextMessage, []byte("nhqi/2024\n"))
	}))
	defer srv.Close()

	rec := &recorder{}
	ws := NewWebSocket(srv.URL, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Listen(ctx, "nurse@example.com", rec) }()

	require.Eventually(t, func() bool {
		return len(rec.Topics()) >= 4 && connections.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}

	topics := rec.Topics()
	assert.Equal(t, []string{"apps", "nhqi/2024"}, topics[:2])
	_, ok := paths.Load("/ws/nurse@example.com")
	assert.True(t, ok)
}

func TestWebSocket_StopsWhileConnected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connected := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connected <- struct{}{}
		// hold the connection until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWebSocket(srv.URL).Listen(ctx, "a@b.c", SubscriberFunc(func(string) {}))
	}()

	<-connected
	cancel()
	assert.NoError(t, <-done)
}

func TestWebSocket_InvalidBaseURL(t *testing.T) {
	err := NewWebSocket("mailto:nobody").Listen(context.Background(), "a@b.c", SubscriberFunc(func(string) {}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "scheme"))
}

func TestChannel(t *testing.T) {
	ch := NewChannel()
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Listen(ctx, "nurse@example.com", rec) }()

	require.Eventually(t, func() bool { return ch.Listeners("nurse@example.com") == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, ch.Publish("nurse@example.com", "events"))
	assert.Equal(t, 0, ch.Publish("other@example.com", "events"))
	assert.Equal(t, []string{"events"}, rec.Topics())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, ch.Listeners("nurse@example.com"))
}
