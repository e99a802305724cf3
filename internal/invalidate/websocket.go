package invalidate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultReconnectDelay is the minimum spacing between connection attempts
const DefaultReconnectDelay = 3 * time.Second

// Endpoint derives the invalidation socket URL of email from the API base
// URL: http becomes ws, https becomes wss and the path is /ws/{email}.
func Endpoint(baseURL, email string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid API base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported API base URL scheme %q", u.Scheme)
	}
	if email == "" {
		return "", errors.New("email is required")
	}

	u = u.JoinPath("ws", email)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// WebSocket is the production Transport. Each inbound text message is one
// topic. Dropped connections are re-dialled, at most once per reconnect
// delay, until the context ends.
type WebSocket struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
	limiter *rate.Limiter
	logger  *zap.Logger
}

// WebSocketOption configures a WebSocket transport
type WebSocketOption func(*WebSocket)

// WithDialer replaces websocket.DefaultDialer, e.g. to share a cookie jar
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(w *WebSocket) { w.dialer = d }
}

// WithHeader adds handshake headers
func WithHeader(h http.Header) WebSocketOption {
	return func(w *WebSocket) { w.header = h }
}

// WithReconnectDelay sets the minimum spacing between connection attempts
func WithReconnectDelay(d time.Duration) WebSocketOption {
	return func(w *WebSocket) { w.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithLogger sets the logger for connection events
func WithLogger(logger *zap.Logger) WebSocketOption {
	return func(w *WebSocket) { w.logger = logger }
}

// NewWebSocket creates a transport dialling the endpoint derived from baseURL
func NewWebSocket(baseURL string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		limiter: rate.NewLimiter(rate.Every(DefaultReconnectDelay), 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Listen keeps one connection for email open until ctx ends
func (w *WebSocket) Listen(ctx context.Context, email string, sub Subscriber) error {
	endpoint, err := Endpoint(w.baseURL, email)
	if err != nil {
		return err
	}

	for {
		if err := w.limiter.Wait(ctx); err != nil {
			// ctx ended (or the wait would outlive its deadline)
			return nil
		}

		err := w.session(ctx, endpoint, sub)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("invalidation socket dropped, reconnecting",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
}

func (w *WebSocket) session(ctx context.Context, endpoint string, sub Subscriber) error {
	conn, resp, err := w.dialer.DialContext(ctx, endpoint, w.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	w.logger.Info("invalidation socket connected", zap.String("endpoint", endpoint))

	// ReadMessage only returns once the connection is closed
	done := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		case <-done:
		}
		conn.Close()
	}()
	defer func() {
		close(done)
		<-closed
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		topic := strings.TrimSpace(string(data))
		if topic == "" {
			continue
		}
		sub.OnInvalidate(topic)
	}
}
