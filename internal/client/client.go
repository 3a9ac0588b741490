// Package client is the public entry point of the signal delivery layer.
// It fronts the notification router, the preference store, and the host
// capability ports behind one narrow surface.
package client

import (
	"context"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/internal/prefs"
	"github.com/tadams95/4ex.ninja-sub006/internal/router"
)

// Client is the facade consumers program against.
type Client struct {
	router  *router.Router
	prefs   *prefs.Store
	wallets repository.WalletDetector
	th      access.Thresholds
}

// New assembles the facade. All dependencies come pre-wired.
func New(r *router.Router, store *prefs.Store, wallets repository.WalletDetector, th access.Thresholds) *Client {
	return &Client{router: r, prefs: store, wallets: wallets, th: th}
}

// ConnectWithWallet opens a wallet-authenticated session. The tier follows
// the wallet's on-chain token balance; a failed lookup aborts with
// router.ErrProviderFailed.
func (c *Client) ConnectWithWallet(ctx context.Context, address, proof string) (models.RouterSession, error) {
	return c.router.ConnectWithWallet(ctx, address, proof)
}

// ConnectWithSession opens a session-token authenticated session at the
// premium tier. userID is optional.
func (c *Client) ConnectWithSession(ctx context.Context, token, userID string) (models.RouterSession, error) {
	return c.router.ConnectWithSession(ctx, token, userID)
}

// ConnectAnonymous opens a free-tier session. Pass "" to mint a random
// anonymous id.
func (c *Client) ConnectAnonymous(ctx context.Context, anonymousID string) (models.RouterSession, error) {
	return c.router.ConnectAnonymous(ctx, anonymousID)
}

// SubscribeToChannel subscribes the active session to an extra channel.
// Channels above the session's tier fail with router.ErrPermissionDenied.
func (c *Client) SubscribeToChannel(channelID string) error {
	return c.router.SubscribeToChannel(channelID)
}

// OnNotification registers a consumer for delivered signals. The returned
// function unregisters it.
func (c *Client) OnNotification(h router.NotificationHandler) func() {
	return c.router.OnNotification(h)
}

// OnConnectionChange registers a connectivity observer.
func (c *Client) OnConnectionChange(h router.ConnectionChangeHandler) func() {
	return c.router.OnConnectionChange(h)
}

// Preferences returns the current preference record.
func (c *Client) Preferences(ctx context.Context) models.Preferences {
	return c.prefs.Get(ctx)
}

// UpdatePreferences merges a partial preference update and returns the
// merged record. Enabling browser push triggers the permission flow.
func (c *Client) UpdatePreferences(ctx context.Context, u models.PreferenceUpdate) (models.Preferences, error) {
	return c.router.UpdatePreferences(ctx, u)
}

// OnPreferencesChange registers an observer for persisted preference
// mutations.
func (c *Client) OnPreferencesChange(h prefs.ChangeHandler) func() {
	return c.prefs.OnChange(h)
}

// Status reports the aggregate router status.
func (c *Client) Status() models.RouterStatus {
	return c.router.Status()
}

// Session returns the active session snapshot, if any.
func (c *Client) Session() (models.RouterSession, bool) {
	return c.router.Session()
}

// GetConnectionStatus reports the transport-level state of the active
// session's connection.
func (c *Client) GetConnectionStatus() (models.ConnectionStatus, bool) {
	return c.router.ConnectionStatus()
}

// AvailableChannels lists every channel with its tier requirement.
func (c *Client) AvailableChannels() []models.Channel {
	return models.ChannelCatalog(c.th)
}

// AvailableWallets lists the wallet providers the host exposes.
func (c *Client) AvailableWallets() []string {
	return c.wallets.Detect()
}

// Disconnect tears down every session. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.router.Disconnect()
}
