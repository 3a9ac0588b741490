// Package pool manages WebSocket sessions keyed by endpoint URL: at most
// one live connection per URL, throttled batch delivery to subscribers,
// heartbeat liveness, and exponential-backoff reconnection.
package pool

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

var (
	// ErrConnect means the initial WebSocket handshake failed. The pool does
	// not retry it; retrying is the caller's call.
	ErrConnect = errors.New("pool: connect failed")

	// ErrUnknownConnection means the connection id does not exist, either
	// because it was never opened or because it has been torn down.
	ErrUnknownConnection = errors.New("pool: unknown connection")

	// ErrPoolClosed means the pool has been shut down.
	ErrPoolClosed = errors.New("pool: closed")
)

// Config describes one connection. It is immutable for the lifetime of the
// connection it produces.
type Config struct {
	URL                  string
	ReconnectDelay       time.Duration // base delay, doubled per attempt
	MaxReconnectAttempts int           // consecutive non-clean closures before giving up
	HeartbeatInterval    time.Duration // 0 disables the heartbeat
	Throttle             time.Duration // 0 flushes every frame in its own batch
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.Throttle < 0 {
		c.Throttle = 100 * time.Millisecond
	}
	return c
}

// Message is one decoded inbound frame. Data is set when the frame was
// valid JSON; otherwise consumers fall back to Raw.
type Message struct {
	Raw  string
	Data json.RawMessage
}

// IsJSON reports whether the frame decoded as JSON.
func (m Message) IsJSON() bool { return m.Data != nil }

// BatchHandler receives the ordered batch of one flush cycle.
type BatchHandler func(batch []Message)

// StateHandler observes connection up/down transitions.
type StateHandler func(connected bool)

// ConnID derives the deterministic connection id for an endpoint URL.
func ConnID(url string) string {
	sum := sha1.Sum([]byte(url))
	return "conn-" + hex.EncodeToString(sum[:6])
}

// Pool owns every connection and the timers attached to them.
type Pool struct {
	dialer  repository.Dialer
	clock   clock.Clock
	log     *logger.Logger
	metrics repository.Metrics

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

// New creates a connection pool.
func New(dialer repository.Dialer, clk clock.Clock, log *logger.Logger, m repository.Metrics) *Pool {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = repository.NopMetrics{}
	}
	return &Pool{
		dialer:  dialer,
		clock:   clk,
		log:     log.With("pool"),
		metrics: m,
		conns:   make(map[string]*conn),
	}
}

// Get returns the id of the connection for cfg.URL, dialing a new one when
// none exists. A handshake failure surfaces as ErrConnect and leaves no
// connection behind.
func (p *Pool) Get(ctx context.Context, cfg Config) (string, error) {
	id := ConnID(cfg.URL)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrPoolClosed
	}
	if _, ok := p.conns[id]; ok {
		p.mu.Unlock()
		return id, nil
	}
	c := newConn(p, id, cfg.withDefaults())
	p.conns[id] = c
	p.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		p.remove(id)
		return "", fmt.Errorf("%w: %s: %v", ErrConnect, cfg.URL, err)
	}

	p.metrics.SetOpenConnections(p.size())
	p.log.Info("connection opened", logger.String("id", id), logger.String("url", cfg.URL))
	return id, nil
}

// Subscribe registers a batch handler on a connection. The returned
// function removes it again.
func (p *Pool) Subscribe(id string, h BatchHandler) (func(), error) {
	c := p.lookup(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	c.mu.Lock()
	hid := c.nextHandlerID
	c.nextHandlerID++
	c.handlers[hid] = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers, hid)
		c.mu.Unlock()
	}, nil
}

// OnStateChange registers a connection up/down observer.
func (p *Pool) OnStateChange(id string, h StateHandler) (func(), error) {
	c := p.lookup(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	c.mu.Lock()
	hid := c.nextHandlerID
	c.nextHandlerID++
	c.stateHandlers[hid] = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateHandlers, hid)
		c.mu.Unlock()
	}, nil
}

// Send serializes payload (JSON unless already a string or bytes) and
// writes it. Returns false when the connection is not open or the write
// fails.
func (p *Pool) Send(id string, payload interface{}) bool {
	c := p.lookup(id)
	if c == nil {
		return false
	}
	return c.send(payload)
}

// Close cleanly closes a connection and tears down its timers and handler
// sets. Closing an unknown id is a no-op.
func (p *Pool) Close(id string) {
	c := p.lookup(id)
	if c == nil {
		return
	}
	c.close()
	p.remove(id)
}

// Status reports a snapshot of one connection. The second return is false
// for unknown ids.
func (p *Pool) Status(id string) (models.ConnectionStatus, bool) {
	c := p.lookup(id)
	if c == nil {
		return models.ConnectionStatus{ReadyState: StateClosed.String()}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ConnectionStatus{
		IsConnected:       c.state == StateOpen,
		ReadyState:        c.state.String(),
		ReconnectAttempts: c.reconnectAttempts,
	}, true
}

// ActiveConnections lists the ids currently in the pool, sorted.
func (p *Pool) ActiveConnections() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown closes every connection and refuses further Gets.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*conn)
	p.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	p.metrics.SetOpenConnections(0)
	p.log.Info("pool shut down", logger.Int("connections", len(conns)))
}

func (p *Pool) lookup(id string) *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[id]
}

func (p *Pool) remove(id string) {
	p.mu.Lock()
	c, ok := p.conns[id]
	if ok {
		delete(p.conns, id)
	}
	n := len(p.conns)
	p.mu.Unlock()
	if ok {
		c.markRemoved()
		p.metrics.SetOpenConnections(n)
	}
}

func (p *Pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
