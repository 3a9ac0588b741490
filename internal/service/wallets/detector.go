// Package wallets reports which wallet providers the host exposes.
package wallets

import "sort"

// Known wallet provider identifiers.
const (
	MetaMask = "metamask"
	Coinbase = "coinbase"
	Phantom  = "phantom"
	Brave    = "brave"
)

var known = map[string]struct{}{
	MetaMask: {},
	Coinbase: {},
	Phantom:  {},
	Brave:    {},
}

// Detector implements repository.WalletDetector from static configuration.
// Outside a browser there is nothing to probe, so the deployment declares
// which providers its host integration bridges.
type Detector struct {
	available []string
}

// New keeps the known providers from configured, sorted, deduplicated.
func New(configured []string) *Detector {
	seen := make(map[string]struct{}, len(configured))
	available := make([]string, 0, len(configured))
	for _, w := range configured {
		if _, ok := known[w]; !ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		available = append(available, w)
	}
	sort.Strings(available)
	return &Detector{available: available}
}

// Detect returns the available provider identifiers.
func (d *Detector) Detect() []string {
	out := make([]string, len(d.available))
	copy(out, d.available)
	return out
}
