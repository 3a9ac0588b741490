package models

import "github.com/tadams95/4ex.ninja-sub006/internal/access"

// PreferenceKey is the storage key of the single persisted preference blob.
const PreferenceKey = "notification-preferences"

// Preferences is the per-device notification preference record.
type Preferences struct {
	WalletAddress     string       `json:"walletAddress,omitempty"`
	Sounds            bool         `json:"sounds"`
	BrowserPush       bool         `json:"browserPush"`
	SignalTypes       []SignalType `json:"signalTypes"`
	MinimumConfidence float64      `json:"minimumConfidence"`
	TokenBalance      *int64       `json:"tokenBalance,omitempty"`
	AccessTier        access.Tier  `json:"accessTier,omitempty"`
}

// DefaultPreferences returns the record used before any user mutation.
func DefaultPreferences() Preferences {
	return Preferences{
		Sounds:            true,
		BrowserPush:       false,
		SignalTypes:       []SignalType{SignalBuy, SignalSell},
		MinimumConfidence: 0.7,
	}
}

// WantsSignalType reports whether the preference filter accepts a signal
// type. An empty set accepts everything.
func (p Preferences) WantsSignalType(t SignalType) bool {
	if len(p.SignalTypes) == 0 {
		return true
	}
	for _, st := range p.SignalTypes {
		if st == t {
			return true
		}
	}
	return false
}

// PreferenceUpdate is a shallow partial update; nil fields are untouched.
type PreferenceUpdate struct {
	WalletAddress     *string       `json:"walletAddress,omitempty"`
	Sounds            *bool         `json:"sounds,omitempty"`
	BrowserPush       *bool         `json:"browserPush,omitempty"`
	SignalTypes       *[]SignalType `json:"signalTypes,omitempty"`
	MinimumConfidence *float64      `json:"minimumConfidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	TokenBalance      *int64        `json:"tokenBalance,omitempty"`
}

// Apply merges the update into p and keeps accessTier consistent with
// tokenBalance.
func (u PreferenceUpdate) Apply(p Preferences, th access.Thresholds) Preferences {
	if u.WalletAddress != nil {
		p.WalletAddress = *u.WalletAddress
	}
	if u.Sounds != nil {
		p.Sounds = *u.Sounds
	}
	if u.BrowserPush != nil {
		p.BrowserPush = *u.BrowserPush
	}
	if u.SignalTypes != nil {
		p.SignalTypes = append([]SignalType(nil), (*u.SignalTypes)...)
	}
	if u.MinimumConfidence != nil {
		p.MinimumConfidence = *u.MinimumConfidence
	}
	if u.TokenBalance != nil {
		balance := *u.TokenBalance
		p.TokenBalance = &balance
	}
	if p.TokenBalance != nil {
		p.AccessTier = th.TierForBalance(*p.TokenBalance)
	}
	return p
}
