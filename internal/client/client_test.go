package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/internal/pool"
	"github.com/tadams95/4ex.ninja-sub006/internal/prefs"
	"github.com/tadams95/4ex.ninja-sub006/internal/router"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/ratelimit"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/wallets"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
	"github.com/tadams95/4ex.ninja-sub006/pkg/storage"
)

type scriptSocket struct {
	in chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *scriptSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-s.in
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return websocket.TextMessage, data, nil
}

func (s *scriptSocket) WriteMessage(messageType int, data []byte) error { return nil }

func (s *scriptSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	return nil
}

type scriptDialer struct {
	mu   sync.Mutex
	last *scriptSocket
}

func (d *scriptDialer) Dial(ctx context.Context, url string) (repository.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = &scriptSocket{in: make(chan []byte, 16)}
	return d.last, nil
}

type fixedBalance int64

func (b fixedBalance) BalanceOf(ctx context.Context, walletAddress string) (int64, error) {
	return int64(b), nil
}

type quietNotifier struct{}

func (quietNotifier) RequestPermission(ctx context.Context) (bool, error) { return true, nil }
func (quietNotifier) Push(n models.SignalNotification) error              { return nil }

type quietAudio struct{}

func (quietAudio) Play(st models.SignalType) error { return nil }

// TestWhaleDeliveryEndToEnd walks the full path: a whale wallet connects,
// all four channels subscribe, and a whale-channel signal reaches the
// registered consumer while the whale tier is reported throughout.
func TestWhaleDeliveryEndToEnd(t *testing.T) {
	log := logger.Nop()
	th := access.DefaultThresholds()
	dialer := &scriptDialer{}
	p := pool.New(dialer, clock.New(), log, nil)
	defer p.Shutdown()

	store := prefs.New(storage.NewMemory(), th, 0.7, log)
	r := router.New(
		router.Config{BaseURL: "ws://signals.test"},
		p, store, th,
		fixedBalance(150_000), quietNotifier{}, quietAudio{},
		ratelimit.New(clock.New()), clock.New(), log, nil,
	)
	c := New(r, store, wallets.New([]string{wallets.MetaMask}), th)
	defer c.Disconnect()

	got := make(chan models.SignalNotification, 4)
	c.OnNotification(func(n models.SignalNotification) { got <- n })

	sess, err := c.ConnectWithWallet(context.Background(), "0xwhale", "")
	if err != nil {
		t.Fatalf("ConnectWithWallet: %v", err)
	}
	if sess.AccessTier != access.TierWhale {
		t.Fatalf("tier = %s, want whale", sess.AccessTier)
	}
	if len(sess.SubscribedChannels) != 4 {
		t.Fatalf("subscribed = %v, want all four channels", sess.SubscribedChannels)
	}

	frame, _ := json.Marshal(map[string]any{
		"type": "signal",
		"data": map[string]any{
			"signal_id":        "sig-whale-1",
			"pair":             "GBP/JPY",
			"signal_type":      "SELL",
			"entry_price":      187.432,
			"confidence_score": 0.92,
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
			"channel":          "whale",
		},
	})
	dialer.mu.Lock()
	sock := dialer.last
	dialer.mu.Unlock()
	sock.in <- frame

	select {
	case n := <-got:
		if n.SignalID != "sig-whale-1" || n.Channel != "whale" {
			t.Fatalf("delivered = %+v", n)
		}
		if n.AccessTier != access.TierWhale {
			t.Fatalf("notification tier = %s, want whale", n.AccessTier)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("whale signal never delivered")
	}

	st := c.Status()
	if !st.Connected || st.AccessTier != access.TierWhale {
		t.Fatalf("status = %+v", st)
	}
	if cs, ok := c.GetConnectionStatus(); !ok || !cs.IsConnected {
		t.Fatalf("connection status = %+v, ok=%v", cs, ok)
	}

	prefs := c.Preferences(context.Background())
	if prefs.WalletAddress != "0xwhale" || prefs.AccessTier != access.TierWhale {
		t.Fatalf("persisted prefs = %+v", prefs)
	}

	if chs := c.AvailableChannels(); len(chs) != 4 {
		t.Fatalf("channels = %v", chs)
	}
	if ws := c.AvailableWallets(); len(ws) != 1 || ws[0] != wallets.MetaMask {
		t.Fatalf("wallets = %v", ws)
	}
}

func TestSubscribeAboveTierDenied(t *testing.T) {
	log := logger.Nop()
	th := access.DefaultThresholds()
	dialer := &scriptDialer{}
	p := pool.New(dialer, clock.New(), log, nil)
	defer p.Shutdown()

	store := prefs.New(storage.NewMemory(), th, 0.7, log)
	r := router.New(
		router.Config{BaseURL: "ws://signals.test"},
		p, store, th,
		fixedBalance(500), quietNotifier{}, quietAudio{},
		ratelimit.New(clock.New()), clock.New(), log, nil,
	)
	c := New(r, store, wallets.New(nil), th)
	defer c.Disconnect()

	sess, err := c.ConnectWithWallet(context.Background(), "0xsmall", "")
	if err != nil {
		t.Fatalf("ConnectWithWallet: %v", err)
	}
	if sess.AccessTier != access.TierFree {
		t.Fatalf("tier = %s, want free for 500 tokens", sess.AccessTier)
	}
	if err := c.SubscribeToChannel(access.ChannelHolder); !errors.Is(err, router.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}
