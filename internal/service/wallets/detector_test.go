package wallets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFiltersUnknownProviders(t *testing.T) {
	d := New([]string{"metamask", "ledger-live", "coinbase"})
	assert.Equal(t, []string{Coinbase, MetaMask}, d.Detect())
}

func TestDetectDeduplicates(t *testing.T) {
	d := New([]string{"metamask", "metamask", "phantom"})
	assert.Equal(t, []string{MetaMask, Phantom}, d.Detect())
}

func TestDetectEmpty(t *testing.T) {
	d := New(nil)
	assert.Empty(t, d.Detect())
}

func TestDetectReturnsCopy(t *testing.T) {
	d := New([]string{"metamask"})
	got := d.Detect()
	got[0] = "mutated"
	assert.Equal(t, []string{MetaMask}, d.Detect())
}
