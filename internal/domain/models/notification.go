package models

import (
	"time"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
)

// SignalType is the direction of a trading signal.
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalAlert SignalType = "ALERT"
)

// IsValid reports whether t is a known signal type.
func (t SignalType) IsValid() bool {
	switch t {
	case SignalBuy, SignalSell, SignalAlert:
		return true
	}
	return false
}

// AuthType identifies how a router session was authenticated.
type AuthType string

const (
	AuthWallet    AuthType = "wallet"
	AuthSession   AuthType = "session"
	AuthAnonymous AuthType = "anonymous"
)

// SignalNotification is a trading signal after decode and filtering,
// as handed to UI consumers and side-effect sinks.
type SignalNotification struct {
	SignalID        string      `json:"signalId"`
	Pair            string      `json:"pair"`
	SignalType      SignalType  `json:"signalType"`
	EntryPrice      float64     `json:"entryPrice"`
	ConfidenceScore float64     `json:"confidenceScore"`
	Channel         string      `json:"channel"`
	AccessTier      access.Tier `json:"accessTier,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Channel describes a named signal stream and the tier it requires.
type Channel struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	AccessTier           access.Tier `json:"accessTier"`
	RequiredTokenBalance int64       `json:"requiredTokenBalance,omitempty"`
}

// ChannelCatalog enumerates every channel with its tier requirement,
// lowest tier first.
func ChannelCatalog(th access.Thresholds) []Channel {
	ids := access.ChannelsFor(access.TierWhale)
	catalog := make([]Channel, 0, len(ids))
	for _, id := range ids {
		tier := access.TierForChannel(id)
		catalog = append(catalog, Channel{
			ID:                   id,
			Name:                 channelNames[id],
			AccessTier:           tier,
			RequiredTokenBalance: th.RequiredBalance(tier),
		})
	}
	return catalog
}

var channelNames = map[string]string{
	access.ChannelPublic:  "Public Signals",
	access.ChannelPremium: "Premium Signals",
	access.ChannelHolder:  "Holder Signals",
	access.ChannelWhale:   "Whale Signals",
}

// RouterSession is an authenticated binding of a pooled connection to an
// auth mode, access tier, and channel set.
type RouterSession struct {
	ConnectionID       string      `json:"connectionId"`
	AuthType           AuthType    `json:"authType"`
	AccessTier         access.Tier `json:"accessTier"`
	SubscribedChannels []string    `json:"subscribedChannels"`
	Connected          bool        `json:"connected"`
}

// ConnectionStatus is a point-in-time snapshot of one pooled connection.
type ConnectionStatus struct {
	IsConnected       bool   `json:"isConnected"`
	ReadyState        string `json:"readyState"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

// RouterStatus is the aggregate status the facade reports to callers.
type RouterStatus struct {
	Connected       bool        `json:"connected"`
	AuthType        AuthType    `json:"authType,omitempty"`
	AccessTier      access.Tier `json:"accessTier,omitempty"`
	ConnectionCount int         `json:"connectionCount"`
}
