// Package router routes server signal frames to notification consumers.
// It owns the authenticated sessions on top of the connection pool,
// applies the preference and tier filter policy, and fans accepted
// signals out to handlers and side-effect sinks.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/internal/pool"
	"github.com/tadams95/4ex.ninja-sub006/internal/prefs"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/ratelimit"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

var (
	// ErrProviderFailed means the balance lookup failed and no tier could be
	// assigned. Wallet connects never fall back to a guessed tier.
	ErrProviderFailed = errors.New("router: balance provider failed")

	// ErrPermissionDenied means the caller's tier does not grant the channel,
	// or a host permission (browser push) was refused.
	ErrPermissionDenied = errors.New("router: permission denied")

	// ErrNoActiveSession means an operation needs a connected session and
	// none exists.
	ErrNoActiveSession = errors.New("router: no active session")

	// ErrRateLimited means the per-connection subscribe budget is exhausted.
	ErrRateLimited = errors.New("router: subscribe rate limited")
)

// Subscribe frame budget per connection.
const (
	subscribeBurst  = 10
	subscribeRefill = 2 // tokens per second
)

// Config carries the connection parameters the router hands to the pool.
type Config struct {
	BaseURL              string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	Throttle             time.Duration
}

// NotificationHandler receives every signal that survives filtering.
type NotificationHandler func(n models.SignalNotification)

// ConnectionChangeHandler observes session connectivity transitions.
type ConnectionChangeHandler func(connected bool, authType models.AuthType)

type session struct {
	connectionID string
	authType     models.AuthType
	tier         access.Tier
	channels     map[string]struct{}
	delivered    map[string]struct{}
	connected    bool
	unsubs       []func()
}

func (s *session) snapshotLocked() models.RouterSession {
	channels := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return models.RouterSession{
		ConnectionID:       s.connectionID,
		AuthType:           s.authType,
		AccessTier:         s.tier,
		SubscribedChannels: channels,
		Connected:          s.connected,
	}
}

// Router is the notification routing core.
type Router struct {
	cfg     Config
	pool    *pool.Pool
	prefs   *prefs.Store
	th      access.Thresholds
	balance repository.BalanceProvider
	push    repository.Notifier
	audio   repository.AudioPlayer
	sinks   []repository.SignalSink
	limiter *ratelimit.Limiter
	clock   clock.Clock
	log     *logger.Logger
	metrics repository.Metrics

	mu            sync.Mutex
	sessions      map[models.AuthType]*session
	active        *session
	notifHandlers map[int]NotificationHandler
	connHandlers  map[int]ConnectionChangeHandler
	nextHandlerID int
	pushGranted   bool
}

// New builds a router. Sinks run after the notification handlers; their
// failures are logged, never propagated.
func New(
	cfg Config,
	p *pool.Pool,
	store *prefs.Store,
	th access.Thresholds,
	balance repository.BalanceProvider,
	push repository.Notifier,
	audio repository.AudioPlayer,
	limiter *ratelimit.Limiter,
	clk clock.Clock,
	log *logger.Logger,
	m repository.Metrics,
	sinks ...repository.SignalSink,
) *Router {
	if m == nil {
		m = repository.NopMetrics{}
	}
	return &Router{
		cfg:           cfg,
		pool:          p,
		prefs:         store,
		th:            th,
		balance:       balance,
		push:          push,
		audio:         audio,
		sinks:         sinks,
		limiter:       limiter,
		clock:         clk,
		log:           log.With("router"),
		metrics:       m,
		sessions:      make(map[models.AuthType]*session),
		notifHandlers: make(map[int]NotificationHandler),
		connHandlers:  make(map[int]ConnectionChangeHandler),
	}
}

// ConnectWithWallet resolves the wallet's tier from its token balance and
// opens (or reuses) the wallet-authenticated session. A failed balance
// lookup aborts the connect with ErrProviderFailed.
func (r *Router) ConnectWithWallet(ctx context.Context, address, proof string) (models.RouterSession, error) {
	balance, err := r.balance.BalanceOf(ctx, address)
	if err != nil {
		r.metrics.RecordError("balance_lookup")
		return models.RouterSession{}, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	tier := r.th.TierForBalance(balance)

	endpoint := fmt.Sprintf("%s/ws/notifications?walletAddress=%s", r.cfg.BaseURL, url.QueryEscape(address))
	if proof != "" {
		endpoint += "&proof=" + url.QueryEscape(proof)
	}
	sess, err := r.open(ctx, models.AuthWallet, endpoint, tier)
	if err != nil {
		return models.RouterSession{}, err
	}

	if _, err := r.prefs.Update(ctx, models.PreferenceUpdate{
		WalletAddress: &address,
		TokenBalance:  &balance,
	}); err != nil {
		r.log.Warn("persisting wallet preferences failed", logger.Error(err))
	}
	return sess, nil
}

// ConnectWithSession opens the session-token authenticated session. The
// tier starts at premium; the server may revise it through an auth frame.
// userID is optional and only forwarded for server-side correlation.
func (r *Router) ConnectWithSession(ctx context.Context, token, userID string) (models.RouterSession, error) {
	endpoint := fmt.Sprintf("%s/ws/notifications?sessionToken=%s", r.cfg.BaseURL, url.QueryEscape(token))
	if userID != "" {
		endpoint += "&userId=" + url.QueryEscape(userID)
		r.log.Debug("session connect with user id", logger.String("user_id", userID))
	}
	return r.open(ctx, models.AuthSession, endpoint, access.TierPremium)
}

// ConnectAnonymous opens the anonymous session at the free tier. An empty
// id gets a fresh random one.
func (r *Router) ConnectAnonymous(ctx context.Context, anonymousID string) (models.RouterSession, error) {
	if anonymousID == "" {
		anonymousID = uuid.NewString()
	}
	endpoint := fmt.Sprintf("%s/ws/notifications?anonymousId=%s", r.cfg.BaseURL, url.QueryEscape(anonymousID))
	return r.open(ctx, models.AuthAnonymous, endpoint, access.TierFree)
}

func (r *Router) open(ctx context.Context, authType models.AuthType, endpoint string, tier access.Tier) (models.RouterSession, error) {
	r.mu.Lock()
	if existing := r.sessions[authType]; existing != nil {
		if _, alive := r.pool.Status(existing.connectionID); alive {
			r.active = existing
			snap := existing.snapshotLocked()
			r.mu.Unlock()
			return snap, nil
		}
		// The pool gave up on this connection; start over.
		for _, unsub := range existing.unsubs {
			unsub()
		}
		delete(r.sessions, authType)
	}
	r.mu.Unlock()

	id, err := r.pool.Get(ctx, pool.Config{
		URL:                  endpoint,
		ReconnectDelay:       r.cfg.ReconnectDelay,
		MaxReconnectAttempts: r.cfg.MaxReconnectAttempts,
		HeartbeatInterval:    r.cfg.HeartbeatInterval,
		Throttle:             r.cfg.Throttle,
	})
	if err != nil {
		r.metrics.RecordError("connect")
		return models.RouterSession{}, err
	}

	s := &session{
		connectionID: id,
		authType:     authType,
		tier:         tier,
		channels:     make(map[string]struct{}),
		delivered:    make(map[string]struct{}),
		connected:    true,
	}
	unsubBatch, err := r.pool.Subscribe(id, func(batch []pool.Message) {
		r.handleBatch(s, batch)
	})
	if err != nil {
		return models.RouterSession{}, err
	}
	unsubState, err := r.pool.OnStateChange(id, func(connected bool) {
		r.handleStateChange(s, connected)
	})
	if err != nil {
		unsubBatch()
		return models.RouterSession{}, err
	}
	s.unsubs = []func(){unsubBatch, unsubState}

	r.mu.Lock()
	r.sessions[authType] = s
	r.active = s
	r.mu.Unlock()

	for _, ch := range access.ChannelsFor(tier) {
		if err := r.subscribe(s, ch); err != nil {
			r.log.Warn("auto-subscribe failed",
				logger.String("channel", ch), logger.Error(err))
		}
	}
	r.emitConnectionChange(true, authType)

	r.log.Info("session connected",
		logger.String("auth_type", string(authType)),
		logger.String("tier", tier.String()),
		logger.String("connection_id", id))

	r.mu.Lock()
	snap := s.snapshotLocked()
	r.mu.Unlock()
	return snap, nil
}

// SubscribeToChannel subscribes the active session to a channel after a
// tier check. Requests are rate limited per connection.
func (r *Router) SubscribeToChannel(channelID string) error {
	r.mu.Lock()
	s := r.active
	var tier access.Tier
	if s != nil {
		tier = s.tier
	}
	r.mu.Unlock()
	if s == nil {
		return ErrNoActiveSession
	}
	if !access.Allowed(tier, channelID) {
		return fmt.Errorf("%w: channel %q requires %s tier",
			ErrPermissionDenied, channelID, access.TierForChannel(channelID))
	}
	return r.subscribe(s, channelID)
}

func (r *Router) subscribe(s *session, channelID string) error {
	if !r.limiter.Allow(s.connectionID, subscribeBurst, subscribeRefill) {
		r.metrics.RecordError("rate_limited")
		return ErrRateLimited
	}
	frame := models.NewSubscribeFrame(channelID, r.clock.Now())
	if !r.pool.Send(s.connectionID, frame) {
		return fmt.Errorf("router: connection %s not open", s.connectionID)
	}
	r.mu.Lock()
	s.channels[channelID] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *Router) unsubscribe(s *session, channelID string) {
	frame := models.UnsubscribeFrame{Type: models.FrameUnsubscribe, Channel: channelID}
	r.pool.Send(s.connectionID, frame)
	r.mu.Lock()
	delete(s.channels, channelID)
	r.mu.Unlock()
}

// OnNotification registers a handler for accepted signals. The returned
// function unregisters it.
func (r *Router) OnNotification(h NotificationHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextHandlerID
	r.nextHandlerID++
	r.notifHandlers[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.notifHandlers, id)
	}
}

// OnConnectionChange registers a connectivity observer.
func (r *Router) OnConnectionChange(h ConnectionChangeHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextHandlerID
	r.nextHandlerID++
	r.connHandlers[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.connHandlers, id)
	}
}

// UpdatePreferences merges a partial preference update. Enabling browser
// push first asks the host for permission; a refusal persists push as
// disabled and returns ErrPermissionDenied.
func (r *Router) UpdatePreferences(ctx context.Context, u models.PreferenceUpdate) (models.Preferences, error) {
	if u.BrowserPush != nil && *u.BrowserPush {
		r.mu.Lock()
		granted := r.pushGranted
		r.mu.Unlock()
		if !granted {
			ok, err := r.push.RequestPermission(ctx)
			if err != nil || !ok {
				denied := false
				u.BrowserPush = &denied
				merged, updateErr := r.prefs.Update(ctx, u)
				if updateErr != nil {
					return merged, updateErr
				}
				if err != nil {
					return merged, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
				}
				return merged, fmt.Errorf("%w: browser notifications refused", ErrPermissionDenied)
			}
			r.mu.Lock()
			r.pushGranted = true
			r.mu.Unlock()
		}
	}
	return r.prefs.Update(ctx, u)
}

// Disconnect closes every session. Safe to call repeatedly.
func (r *Router) Disconnect() {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[models.AuthType]*session)
	r.active = nil
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].connectionID < sessions[j].connectionID
	})
	for _, s := range sessions {
		for _, unsub := range s.unsubs {
			unsub()
		}
		r.pool.Close(s.connectionID)
		r.limiter.Forget(s.connectionID)
		r.emitConnectionChange(false, s.authType)
	}
}

// Status reports the aggregate router state.
func (r *Router) Status() models.RouterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := models.RouterStatus{}
	for _, s := range r.sessions {
		if s.connected {
			st.ConnectionCount++
		}
	}
	if r.active != nil {
		st.Connected = r.active.connected
		st.AuthType = r.active.authType
		st.AccessTier = r.active.tier
	}
	return st
}

// Session returns the active session snapshot, if any.
func (r *Router) Session() (models.RouterSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return models.RouterSession{}, false
	}
	return r.active.snapshotLocked(), true
}

// ConnectionStatus reports the pool-level state of the active session's
// connection.
func (r *Router) ConnectionStatus() (models.ConnectionStatus, bool) {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s == nil {
		return models.ConnectionStatus{}, false
	}
	return r.pool.Status(s.connectionID)
}

func (r *Router) handleBatch(s *session, batch []pool.Message) {
	ctx := context.Background()
	p := r.prefs.Get(ctx)

	for _, msg := range batch {
		if !msg.IsJSON() {
			continue
		}
		var frame models.ServerFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			r.metrics.RecordSignalDropped(DropMalformed)
			continue
		}
		if frame.Type == models.FrameAuth {
			r.applyAuthFrame(s, frame)
			continue
		}

		r.mu.Lock()
		tier := s.tier
		r.mu.Unlock()

		n, reason, ok := evaluate(p, tier, frame, func(signalID string) bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			_, dup := s.delivered[signalID]
			return dup
		})
		if !ok {
			if reason != DropNotSignal {
				r.metrics.RecordSignalDropped(reason)
				r.log.Debug("signal dropped",
					logger.String("reason", reason))
			}
			continue
		}

		r.mu.Lock()
		s.delivered[n.SignalID] = struct{}{}
		r.mu.Unlock()

		r.metrics.RecordSignalDelivered(n.Channel)
		r.dispatch(ctx, n, p)
	}
}

func (r *Router) dispatch(ctx context.Context, n models.SignalNotification, p models.Preferences) {
	for _, h := range r.snapshotNotifHandlers() {
		r.invoke(h, n)
	}

	if p.BrowserPush {
		r.mu.Lock()
		granted := r.pushGranted
		r.mu.Unlock()
		if granted {
			if err := r.push.Push(n); err != nil {
				r.metrics.RecordError("push")
				r.log.Warn("push delivery failed", logger.Error(err))
			}
		}
	}
	if p.Sounds {
		if err := r.audio.Play(n.SignalType); err != nil {
			r.log.Debug("audio cue failed", logger.Error(err))
		}
	}
	for _, sink := range r.sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			r.metrics.RecordError("sink")
			r.log.Warn("sink delivery failed",
				logger.String("signal_id", n.SignalID), logger.Error(err))
		}
	}
}

func (r *Router) invoke(h NotificationHandler, n models.SignalNotification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("notification handler panicked", logger.Any("panic", rec))
		}
	}()
	h(n)
}

// applyAuthFrame lets the server revise the tier of a session-token
// connection. Channels the new tier no longer grants are unsubscribed;
// newly granted ones are subscribed.
func (r *Router) applyAuthFrame(s *session, frame models.ServerFrame) {
	if s.authType != models.AuthSession {
		return
	}
	var data models.AuthData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return
	}
	tier := access.Tier(data.AccessTier)
	if !tier.IsValid() {
		return
	}

	r.mu.Lock()
	if s.tier == tier {
		r.mu.Unlock()
		return
	}
	s.tier = tier
	current := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		current = append(current, ch)
	}
	r.mu.Unlock()
	sort.Strings(current)

	r.log.Info("tier revised by server", logger.String("tier", tier.String()))

	for _, ch := range current {
		if !access.Allowed(tier, ch) {
			r.unsubscribe(s, ch)
		}
	}
	for _, ch := range access.ChannelsFor(tier) {
		r.mu.Lock()
		_, have := s.channels[ch]
		r.mu.Unlock()
		if !have {
			if err := r.subscribe(s, ch); err != nil {
				r.log.Warn("subscribe after tier revision failed",
					logger.String("channel", ch), logger.Error(err))
			}
		}
	}
}

func (r *Router) handleStateChange(s *session, connected bool) {
	r.mu.Lock()
	tracked := r.sessions[s.authType] == s
	if tracked {
		s.connected = connected
	}
	r.mu.Unlock()
	if !tracked {
		return
	}
	r.emitConnectionChange(connected, s.authType)
}

func (r *Router) emitConnectionChange(connected bool, authType models.AuthType) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.connHandlers))
	for id := range r.connHandlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]ConnectionChangeHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, r.connHandlers[id])
	}
	r.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("connection handler panicked", logger.Any("panic", rec))
				}
			}()
			h(connected, authType)
		}()
	}
}

func (r *Router) snapshotNotifHandlers() []NotificationHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.notifHandlers))
	for id := range r.notifHandlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]NotificationHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, r.notifHandlers[id])
	}
	return handlers
}
