package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads text frames from a WebSocket endpoint.
type WebSocketSource struct {
	URL       string
	Dialer    *websocket.Dialer
	UserAgent string
}

// Dial performs the WebSocket handshake.
func (s *WebSocketSource) Dial(ctx context.Context) (Conn, error) {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if s.UserAgent != "" {
		header.Set("User-Agent", s.UserAgent)
	}

	conn, resp, err := dialer.DialContext(ctx, s.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %d: %w", errUnexpectedStatus, resp.StatusCode, err)
		}

		return nil, err
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Next() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
