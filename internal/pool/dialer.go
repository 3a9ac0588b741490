package pool

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
)

// WebSocketDialer is the production Dialer backed by gorilla/websocket.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer using gorilla's defaults.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{dialer: websocket.DefaultDialer}
}

// Dial performs the WebSocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (repository.Socket, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}
