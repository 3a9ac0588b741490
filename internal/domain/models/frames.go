package models

import (
	"encoding/json"
	"time"
)

// Wire frame types exchanged with the notification server.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FrameSignal      = "signal"
	FrameAuth        = "auth"
)

// SubscribeFrame asks the server to start streaming a channel.
type SubscribeFrame struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
}

// NewSubscribeFrame builds a subscribe frame stamped with now.
func NewSubscribeFrame(channel string, now time.Time) SubscribeFrame {
	return SubscribeFrame{
		Type:      FrameSubscribe,
		Channel:   channel,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// UnsubscribeFrame asks the server to stop streaming a channel.
type UnsubscribeFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// PingFrame is the heartbeat probe. Timestamp is epoch milliseconds.
type PingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ServerFrame is the envelope of every JSON frame the server sends.
type ServerFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// SignalData is the payload of a "signal" frame, in the server's snake_case.
type SignalData struct {
	SignalID        string  `json:"signal_id"`
	Pair            string  `json:"pair"`
	SignalType      string  `json:"signal_type"`
	EntryPrice      float64 `json:"entry_price"`
	ConfidenceScore float64 `json:"confidence_score"`
	Timestamp       string  `json:"timestamp"`
	Channel         string  `json:"channel"`
}

// Notification converts wire signal data into the delivery model.
func (d SignalData) Notification() SignalNotification {
	ts, err := time.Parse(time.RFC3339, d.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	return SignalNotification{
		SignalID:        d.SignalID,
		Pair:            d.Pair,
		SignalType:      SignalType(d.SignalType),
		EntryPrice:      d.EntryPrice,
		ConfidenceScore: d.ConfidenceScore,
		Channel:         d.Channel,
		Timestamp:       ts,
	}
}

// AuthData is the payload of an "auth" handshake frame. The server may use
// it to override the tier assumed for session-authenticated connections.
type AuthData struct {
	AccessTier string `json:"access_tier"`
	UserID     string `json:"user_id,omitempty"`
}
