// Package access resolves a holder's on-chain token balance to an access
// tier and the set of notification channels that tier may subscribe to.
package access

// Tier is a totally ordered access label derived from a token balance.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierHolder  Tier = "holder"
	TierWhale   Tier = "whale"
)

// Channel identifiers. Each tier's channel set is cumulative: a higher tier
// always contains every lower tier's channels.
const (
	ChannelPublic  = "public"
	ChannelPremium = "premium"
	ChannelHolder  = "holder"
	ChannelWhale   = "whale"
)

// Default token-balance thresholds, in whole tokens.
const (
	DefaultPremiumThreshold int64 = 1_000
	DefaultHolderThreshold  int64 = 10_000
	DefaultWhaleThreshold   int64 = 100_000
)

var tierRank = map[Tier]int{
	TierFree:    0,
	TierPremium: 1,
	TierHolder:  2,
	TierWhale:   3,
}

// Rank returns the position of t in the tier order. Unknown tiers rank below free.
func (t Tier) Rank() int {
	r, ok := tierRank[t]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether t is equal to or above other in the tier order.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	_, ok := tierRank[t]
	return ok
}

func (t Tier) String() string { return string(t) }

// Thresholds holds the balance cut-offs for the paid tiers.
type Thresholds struct {
	Premium int64
	Holder  int64
	Whale   int64
}

// DefaultThresholds returns the standard tier thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Premium: DefaultPremiumThreshold,
		Holder:  DefaultHolderThreshold,
		Whale:   DefaultWhaleThreshold,
	}
}

// TierForBalance maps a token balance to its access tier.
func (th Thresholds) TierForBalance(balance int64) Tier {
	switch {
	case balance >= th.Whale:
		return TierWhale
	case balance >= th.Holder:
		return TierHolder
	case balance >= th.Premium:
		return TierPremium
	default:
		return TierFree
	}
}

// RequiredBalance returns the minimum balance for a tier, zero for free.
func (th Thresholds) RequiredBalance(t Tier) int64 {
	switch t {
	case TierWhale:
		return th.Whale
	case TierHolder:
		return th.Holder
	case TierPremium:
		return th.Premium
	default:
		return 0
	}
}

// TierForChannel returns the minimum tier required to read a channel.
// Unknown channels require the whale tier.
func TierForChannel(channelID string) Tier {
	switch channelID {
	case ChannelPublic:
		return TierFree
	case ChannelPremium:
		return TierPremium
	case ChannelHolder:
		return TierHolder
	case ChannelWhale:
		return TierWhale
	default:
		return TierWhale
	}
}

// ChannelsFor returns the channel ids a tier may subscribe to, lowest first.
func ChannelsFor(t Tier) []string {
	channels := []string{ChannelPublic}
	if t.AtLeast(TierPremium) {
		channels = append(channels, ChannelPremium)
	}
	if t.AtLeast(TierHolder) {
		channels = append(channels, ChannelHolder)
	}
	if t.AtLeast(TierWhale) {
		channels = append(channels, ChannelWhale)
	}
	return channels
}

// Allowed reports whether a tier may read the given channel.
func Allowed(t Tier, channelID string) bool {
	return t.AtLeast(TierForChannel(channelID))
}
