// Package repository declares the ports the delivery core depends on.
// Host-environment capabilities (sockets, push, audio, wallet discovery,
// balance lookup) are injected so the core runs headless.
package repository

import (
	"context"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
)

// Socket is one live WebSocket session. The message type constants follow
// gorilla/websocket (1 = text, 8 = close, 9 = ping).
type Socket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens sockets. The default implementation wraps gorilla's dialer;
// tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// BalanceProvider reads a wallet's token balance, in whole tokens.
// Implementations must return an error on lookup failure rather than a
// guessed balance.
type BalanceProvider interface {
	BalanceOf(ctx context.Context, walletAddress string) (int64, error)
}

// Notifier delivers browser-push style notifications.
type Notifier interface {
	// RequestPermission asks the host for notification permission.
	RequestPermission(ctx context.Context) (bool, error)
	Push(n models.SignalNotification) error
}

// AudioPlayer plays the audio cue for a delivered signal.
type AudioPlayer interface {
	Play(signalType models.SignalType) error
}

// WalletDetector enumerates wallet providers available on the host.
type WalletDetector interface {
	Detect() []string
}

// SignalSink receives every signal that survives filtering, after the
// notification handlers. Sink failures must not affect delivery.
type SignalSink interface {
	Deliver(ctx context.Context, n models.SignalNotification) error
	Close() error
}

// Metrics records delivery-core observability counters.
type Metrics interface {
	SetOpenConnections(n int)
	RecordReconnect(connectionID string)
	RecordFrame(direction string)
	RecordFlush(batchSize int)
	RecordSignalDelivered(channel string)
	RecordSignalDropped(reason string)
	RecordError(kind string)
}
