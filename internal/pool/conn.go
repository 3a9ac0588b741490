package pool

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

// State is the lifecycle phase of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

const dialTimeout = 10 * time.Second

type conn struct {
	pool *Pool
	id   string
	cfg  Config

	mu            sync.Mutex
	sock          repository.Socket
	state         State
	handlers      map[int]BatchHandler
	stateHandlers map[int]StateHandler
	nextHandlerID int

	buffer     []Message
	flushTimer *clock.Timer
	flushArmed bool

	subscriptions     map[string]struct{}
	lastActivity      time.Time
	reconnectAttempts int
	reconnectTimer    *clock.Timer
	retry             *backoff.ExponentialBackOff

	closing bool // clean close requested
	removed bool
	done    chan struct{}
}

func newConn(p *Pool, id string, cfg Config) *conn {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.ReconnectDelay
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.MaxInterval = time.Hour
	retry.MaxElapsedTime = 0
	retry.Reset()
	return &conn{
		pool:          p,
		id:            id,
		cfg:           cfg,
		state:         StateConnecting,
		handlers:      make(map[int]BatchHandler),
		stateHandlers: make(map[int]StateHandler),
		subscriptions: make(map[string]struct{}),
		retry:         retry,
		done:          make(chan struct{}),
	}
}

// signalDoneLocked marks the connection terminally finished, releasing the
// heartbeat loop. Safe to call more than once.
func (c *conn) signalDoneLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// dial performs the handshake and, on success, starts the read and
// heartbeat loops. Transitioning into open resets the attempt counter.
func (c *conn) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closing || c.removed {
		c.mu.Unlock()
		return ErrUnknownConnection
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sock, err := c.pool.dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closing || c.removed {
		c.mu.Unlock()
		_ = sock.Close()
		return ErrUnknownConnection
	}
	c.sock = sock
	c.state = StateOpen
	c.reconnectAttempts = 0
	c.retry.Reset()
	c.lastActivity = c.pool.clock.Now()
	c.mu.Unlock()

	go c.readLoop(sock)
	if c.cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop(sock)
	}

	c.notifyState(true)
	c.resubscribe(sock)
	return nil
}

func (c *conn) readLoop(sock repository.Socket) {
	for {
		mt, data, err := sock.ReadMessage()
		if err != nil {
			c.handleDisconnect(sock, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		c.ingest(data)
	}
}

// ingest decodes one inbound frame and arms the flush timer. Frames that
// are not valid JSON are kept verbatim as raw strings.
func (c *conn) ingest(data []byte) {
	msg := Message{Raw: string(data)}
	if json.Valid(data) {
		msg.Data = json.RawMessage(append([]byte(nil), data...))
	} else {
		c.pool.metrics.RecordError("decode")
		c.pool.log.Debug("non-JSON frame passed through raw", logger.String("id", c.id))
	}

	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.lastActivity = c.pool.clock.Now()
	c.buffer = append(c.buffer, msg)
	immediate := c.cfg.Throttle == 0
	if !immediate && !c.flushArmed {
		c.flushArmed = true
		c.flushTimer = c.pool.clock.AfterFunc(c.cfg.Throttle, c.flush)
	}
	c.mu.Unlock()

	c.pool.metrics.RecordFrame("in")
	if immediate {
		c.flush()
	}
}

// flush atomically swaps out the buffer and hands the batch to every
// handler in registration order. A panicking handler never interrupts
// delivery to its siblings.
func (c *conn) flush() {
	c.mu.Lock()
	c.flushArmed = false
	batch := c.buffer
	c.buffer = nil
	handlers := c.snapshotHandlersLocked()
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	c.pool.metrics.RecordFlush(len(batch))
	for _, h := range handlers {
		c.safeInvoke(h, batch)
	}
}

func (c *conn) safeInvoke(h BatchHandler, batch []Message) {
	defer func() {
		if r := recover(); r != nil {
			c.pool.metrics.RecordError("handler")
			c.pool.log.Error("message handler panicked",
				logger.String("id", c.id), logger.Any("panic", r))
		}
	}()
	h(batch)
}

func (c *conn) snapshotHandlersLocked() []BatchHandler {
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]BatchHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.handlers[id])
	}
	return out
}

// heartbeatLoop pings on every interval and closes the socket when no
// activity was seen for two intervals. The close is observed by the read
// loop, which drives the reconnect path.
func (c *conn) heartbeatLoop(sock repository.Socket) {
	interval := c.cfg.HeartbeatInterval
	ticker := c.pool.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.sock != sock || c.state != StateOpen {
			c.mu.Unlock()
			return
		}
		idle := c.pool.clock.Now().Sub(c.lastActivity)
		c.mu.Unlock()

		if idle > 2*interval {
			c.pool.log.Warn("connection stale, closing",
				logger.String("id", c.id), logger.Duration("idle", idle))
			c.pool.metrics.RecordError("heartbeat_stale")
			_ = sock.Close()
			return
		}

		ping := models.PingFrame{Type: models.FramePing, Timestamp: c.pool.clock.Now().UnixMilli()}
		b, _ := json.Marshal(ping)
		// Ping write failures are ignored; the liveness check catches a
		// dead socket on the next tick.
		_ = sock.WriteMessage(websocket.TextMessage, b)
	}
}

// handleDisconnect runs once per socket loss. Clean closes tear the
// connection down; anything else enters the reconnect schedule.
func (c *conn) handleDisconnect(sock repository.Socket, err error) {
	c.mu.Lock()
	if c.sock != sock {
		// A newer dial already replaced this socket.
		c.mu.Unlock()
		return
	}
	c.sock = nil
	clean := c.closing || isCleanClose(err)
	if clean {
		c.state = StateClosed
		c.signalDoneLocked()
		c.mu.Unlock()
		c.pool.remove(c.id)
		c.notifyState(false)
		return
	}
	c.mu.Unlock()

	c.pool.log.Warn("connection lost", logger.String("id", c.id), logger.Error(err))
	c.notifyState(false)
	c.scheduleReconnect()
}

// scheduleReconnect books the next dial attempt, backing off exponentially,
// and gives up once the attempt cap is exceeded.
func (c *conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closing || c.removed {
		c.mu.Unlock()
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	if attempt > c.cfg.MaxReconnectAttempts {
		c.state = StateClosed
		c.signalDoneLocked()
		c.mu.Unlock()
		c.pool.log.Error("reconnect attempts exhausted",
			logger.String("id", c.id), logger.Int("attempts", attempt-1))
		c.pool.metrics.RecordError("reconnect_exhausted")
		c.pool.remove(c.id)
		c.notifyState(false)
		return
	}
	c.state = StateConnecting
	delay := c.retry.NextBackOff()
	c.reconnectTimer = c.pool.clock.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	c.pool.metrics.RecordReconnect(c.id)
	c.pool.log.Info("reconnect scheduled",
		logger.String("id", c.id), logger.Int("attempt", attempt), logger.Duration("delay", delay))
}

func (c *conn) redial() {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		skip := c.closing || c.removed
		c.mu.Unlock()
		if skip {
			return
		}
		c.pool.log.Warn("reconnect failed", logger.String("id", c.id), logger.Error(err))
		c.scheduleReconnect()
	}
}

// resubscribe replays the tracked channel subscriptions after a reopen.
func (c *conn) resubscribe(sock repository.Socket) {
	c.mu.Lock()
	channels := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		channels = append(channels, ch)
	}
	c.mu.Unlock()
	sort.Strings(channels)

	for _, ch := range channels {
		frame := models.NewSubscribeFrame(ch, c.pool.clock.Now())
		b, _ := json.Marshal(frame)
		if err := sock.WriteMessage(websocket.TextMessage, b); err != nil {
			c.pool.log.Warn("resubscribe failed",
				logger.String("id", c.id), logger.String("channel", ch), logger.Error(err))
			return
		}
		c.pool.metrics.RecordFrame("out")
	}
}

func (c *conn) send(payload interface{}) bool {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			c.pool.metrics.RecordError("encode")
			c.pool.log.Error("payload serialization failed",
				logger.String("id", c.id), logger.Error(err))
			return false
		}
	}

	c.mu.Lock()
	if c.state != StateOpen || c.sock == nil {
		c.mu.Unlock()
		return false
	}
	sock := c.sock
	c.trackSubscriptionLocked(data)
	c.lastActivity = c.pool.clock.Now()
	c.mu.Unlock()

	if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
		c.pool.log.Warn("write failed", logger.String("id", c.id), logger.Error(err))
		return false
	}
	c.pool.metrics.RecordFrame("out")
	return true
}

// trackSubscriptionLocked mirrors outbound subscribe/unsubscribe frames
// into the channel set replayed on reconnect.
func (c *conn) trackSubscriptionLocked(data []byte) {
	var frame struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Channel == "" {
		return
	}
	switch frame.Type {
	case models.FrameSubscribe:
		c.subscriptions[frame.Channel] = struct{}{}
	case models.FrameUnsubscribe:
		delete(c.subscriptions, frame.Channel)
	}
}

// close performs a clean shutdown: cancel timers, drop buffered messages,
// clear handler sets, and send a close frame. Idempotent.
func (c *conn) close() {
	c.mu.Lock()
	if c.state == StateClosed && c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.state = StateClosing
	sock := c.sock
	c.sock = nil
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.flushArmed = false
	c.buffer = nil
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.handlers = make(map[int]BatchHandler)
	c.state = StateClosed
	c.signalDoneLocked()
	c.mu.Unlock()

	if sock != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = sock.WriteMessage(websocket.CloseMessage, msg)
		_ = sock.Close()
	}

	c.notifyState(false)
	c.mu.Lock()
	c.stateHandlers = make(map[int]StateHandler)
	c.mu.Unlock()
}

func (c *conn) markRemoved() {
	c.mu.Lock()
	c.removed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.signalDoneLocked()
	c.mu.Unlock()
}

func (c *conn) notifyState(connected bool) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.stateHandlers))
	for id := range c.stateHandlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]StateHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.stateHandlers[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.pool.log.Error("state handler panicked",
						logger.String("id", c.id), logger.Any("panic", r))
				}
			}()
			h(connected)
		}()
	}
}

// isCleanClose reports whether the read error corresponds to a clean
// server-initiated close.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
