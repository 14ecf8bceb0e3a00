package console

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

const DefaultWebSocketPath = "/logs/ws"

// WebSocketTransport reads log payloads from text frames.
type WebSocketTransport struct {
	client *blogclient.Client
	url    string
	dialer *websocket.Dialer
}

func NewWebSocketTransport(client *blogclient.Client, path string) *WebSocketTransport {
	if strings.TrimSpace(path) == "" {
		path = DefaultWebSocketPath
	}
	return &WebSocketTransport{
		client: client,
		url:    websocketURL(client.BaseURL()) + path,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) URL() string { return t.url }

func (t *WebSocketTransport) Open(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create handshake request: %w", err)
	}
	if err := t.client.Authorize(ctx, req); err != nil {
		return nil, err
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.url, req.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket: status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsStream) Next(ctx context.Context) (string, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", errStreamEnded
			}
			return "", fmt.Errorf("read websocket: %w", err)
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
