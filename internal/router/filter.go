package router

import (
	"encoding/json"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
)

// Drop reasons, also used as metric labels.
const (
	DropNotSignal     = "not_signal"
	DropMalformed     = "malformed"
	DropLowConfidence = "low_confidence"
	DropSignalType    = "signal_type"
	DropTier          = "tier"
	DropDuplicate     = "duplicate"
)

// evaluate applies the filter policy to one inbound frame. Stages run in
// order and short-circuit on the first reject: frame type, confidence
// threshold, signal-type set, tier containment, then per-session dedup.
// The decision is deterministic for identical inputs.
func evaluate(
	p models.Preferences,
	tier access.Tier,
	frame models.ServerFrame,
	seen func(signalID string) bool,
) (models.SignalNotification, string, bool) {
	var none models.SignalNotification

	if frame.Type != models.FrameSignal {
		return none, DropNotSignal, false
	}

	var data models.SignalData
	if err := json.Unmarshal(frame.Data, &data); err != nil || data.SignalID == "" {
		return none, DropMalformed, false
	}
	n := data.Notification()

	if n.ConfidenceScore < p.MinimumConfidence {
		return none, DropLowConfidence, false
	}
	if !p.WantsSignalType(n.SignalType) {
		return none, DropSignalType, false
	}
	if !access.Allowed(tier, n.Channel) {
		return none, DropTier, false
	}
	if seen(n.SignalID) {
		return none, DropDuplicate, false
	}

	n.AccessTier = access.TierForChannel(n.Channel)
	return n, "", true
}
