package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

type testSocket struct {
	in chan []byte

	mu      sync.Mutex
	writes  [][]byte
	closed  bool
	readErr error
}

func newTestSocket() *testSocket {
	return &testSocket{in: make(chan []byte, 32)}
}

func (s *testSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-s.in
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.readErr != nil {
			return 0, nil, s.readErr
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return websocket.TextMessage, data, nil
}

func (s *testSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageType == websocket.TextMessage {
		s.writes = append(s.writes, append([]byte(nil), data...))
	}
	return nil
}

func (s *testSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	return nil
}

func (s *testSocket) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.readErr = err
		close(s.in)
	}
}

func (s *testSocket) textWrites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	for i, w := range s.writes {
		out[i] = string(w)
	}
	return out
}

type testDialer struct {
	mu      sync.Mutex
	sockets []*testSocket
	errs    []error // consumed per dial; nil entry means success
	dials   int
}

func (d *testDialer) Dial(ctx context.Context, url string) (repository.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newTestSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *testDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *testDialer) socket(i int) *testSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 {
		i = len(d.sockets) + i
	}
	if i < 0 || i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnIDIsDeterministic(t *testing.T) {
	a := ConnID("ws://host/ws?x=1")
	b := ConnID("ws://host/ws?x=1")
	c := ConnID("ws://host/ws?x=2")
	if a != b {
		t.Fatalf("same URL produced different ids: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different URLs share id %s", a)
	}
	if len(a) != len("conn-")+12 {
		t.Fatalf("id %q has unexpected shape", a)
	}
}

func TestGetDeduplicatesByURL(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	cfg := Config{URL: "ws://host/ws"}
	id1, err := p.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	id2, err := p.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("two Gets for one URL returned %s and %s", id1, id2)
	}
	if d.dialCount() != 1 {
		t.Fatalf("dials = %d, want 1", d.dialCount())
	}
	if got := p.ActiveConnections(); len(got) != 1 || got[0] != id1 {
		t.Fatalf("active = %v", got)
	}
}

func TestGetConnectFailure(t *testing.T) {
	d := &testDialer{errs: []error{fmt.Errorf("refused")}}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	_, err := p.Get(context.Background(), Config{URL: "ws://host/ws"})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	if got := p.ActiveConnections(); len(got) != 0 {
		t.Fatalf("failed dial left connection behind: %v", got)
	}

	// The URL is retryable after a failed handshake.
	if _, err := p.Get(context.Background(), Config{URL: "ws://host/ws"}); err != nil {
		t.Fatalf("retry Get: %v", err)
	}
}

func TestThrottleBatchesInOrder(t *testing.T) {
	d := &testDialer{}
	mock := clock.NewMock()
	p := New(d, mock, logger.Nop(), nil)
	defer p.Shutdown()

	id, err := p.Get(context.Background(), Config{URL: "ws://host/ws", Throttle: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var mu sync.Mutex
	var batches [][]Message
	if _, err := p.Subscribe(id, func(batch []Message) {
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sock := d.socket(0)
	sock.in <- []byte(`{"n":1}`)
	sock.in <- []byte(`{"n":2}`)
	sock.in <- []byte(`{"n":3}`)

	c := p.lookup(id)
	waitUntil(t, "frames buffered", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.buffer) == 3
	})
	mu.Lock()
	if len(batches) != 0 {
		mu.Unlock()
		t.Fatalf("flushed before the throttle window elapsed")
	}
	mu.Unlock()

	mock.Add(50 * time.Millisecond)
	waitUntil(t, "batch flush", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(batches[0]) != 3 {
		t.Fatalf("batch size = %d, want 3", len(batches[0]))
	}
	for i, m := range batches[0] {
		want := fmt.Sprintf(`{"n":%d}`, i+1)
		if m.Raw != want {
			t.Fatalf("batch[%d] = %q, want %q", i, m.Raw, want)
		}
	}
}

func TestThrottleZeroFlushesEveryFrame(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, err := p.Get(context.Background(), Config{URL: "ws://host/ws", Throttle: 0})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var mu sync.Mutex
	var batches [][]Message
	p.Subscribe(id, func(batch []Message) {
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	})

	sock := d.socket(0)
	sock.in <- []byte(`{"n":1}`)
	sock.in <- []byte(`{"n":2}`)

	waitUntil(t, "two flushes", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if len(batches[0]) != 1 || len(batches[1]) != 1 {
		t.Fatalf("batch sizes = %d, %d, want 1, 1", len(batches[0]), len(batches[1]))
	}
}

func TestNonJSONFramePassedThroughRaw(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, _ := p.Get(context.Background(), Config{URL: "ws://host/ws", Throttle: 0})

	got := make(chan Message, 1)
	p.Subscribe(id, func(batch []Message) { got <- batch[0] })

	d.socket(0).in <- []byte("plain text")
	select {
	case m := <-got:
		if m.IsJSON() {
			t.Fatalf("plain text decoded as JSON")
		}
		if m.Raw != "plain text" {
			t.Fatalf("raw = %q", m.Raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("frame never delivered")
	}
}

func TestHandlerPanicDoesNotStopSiblings(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, _ := p.Get(context.Background(), Config{URL: "ws://host/ws", Throttle: 0})

	p.Subscribe(id, func(batch []Message) { panic("boom") })
	got := make(chan []Message, 1)
	p.Subscribe(id, func(batch []Message) { got <- batch })

	d.socket(0).in <- []byte(`{"n":1}`)
	select {
	case batch := <-got:
		if len(batch) != 1 {
			t.Fatalf("batch = %v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second handler starved by panicking first")
	}
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, err := p.Get(context.Background(), Config{
		URL:            "ws://host/ws",
		ReconnectDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	frame, _ := json.Marshal(map[string]string{"type": "subscribe", "channel": "premium"})
	if !p.Send(id, string(frame)) {
		t.Fatalf("Send failed")
	}

	first := d.socket(0)
	first.fail(fmt.Errorf("connection reset"))

	waitUntil(t, "redial", func() bool { return d.dialCount() == 2 })
	second := d.socket(1)
	waitUntil(t, "subscription replay", func() bool {
		for _, w := range second.textWrites() {
			var f struct {
				Type    string `json:"type"`
				Channel string `json:"channel"`
			}
			if json.Unmarshal([]byte(w), &f) == nil && f.Type == "subscribe" && f.Channel == "premium" {
				return true
			}
		}
		return false
	})

	st, ok := p.Status(id)
	if !ok || !st.IsConnected {
		t.Fatalf("status after reconnect = %+v, ok=%v", st, ok)
	}
	if st.ReconnectAttempts != 0 {
		t.Fatalf("attempts = %d, want 0 after successful reopen", st.ReconnectAttempts)
	}
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, err := p.Get(context.Background(), Config{
		URL:                  "ws://host/ws",
		ReconnectDelay:       time.Millisecond,
		MaxReconnectAttempts: 3,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var mu sync.Mutex
	var states []bool
	p.OnStateChange(id, func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
	})

	// Every redial will fail from here on.
	d.mu.Lock()
	d.errs = []error{
		fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down"),
		fmt.Errorf("down"), fmt.Errorf("down"),
	}
	d.mu.Unlock()

	d.socket(0).fail(fmt.Errorf("connection reset"))

	waitUntil(t, "connection removal", func() bool {
		_, ok := p.Status(id)
		return !ok
	})
	// Initial dial plus exactly three failed redials.
	if got := d.dialCount(); got != 4 {
		t.Fatalf("dials = %d, want 4", got)
	}
	if p.Send(id, "x") {
		t.Fatalf("Send succeeded on a removed connection")
	}
}

func TestHeartbeatPingsAndDetectsStaleness(t *testing.T) {
	d := &testDialer{}
	mock := clock.NewMock()
	p := New(d, mock, logger.Nop(), nil)
	defer p.Shutdown()

	if _, err := p.Get(context.Background(), Config{
		URL:               "ws://host/ws",
		HeartbeatInterval: time.Second,
		ReconnectDelay:    time.Millisecond,
	}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	sock := d.socket(0)

	mock.Add(time.Second)
	waitUntil(t, "ping frame", func() bool {
		for _, w := range sock.textWrites() {
			var f struct {
				Type string `json:"type"`
			}
			if json.Unmarshal([]byte(w), &f) == nil && f.Type == "ping" {
				return true
			}
		}
		return false
	})

	// No inbound activity for over two intervals closes the socket and
	// enters the reconnect path.
	mock.Add(time.Second)
	mock.Add(time.Second)
	waitUntil(t, "stale socket close", func() bool {
		sock.mu.Lock()
		defer sock.mu.Unlock()
		return sock.closed
	})
}

func TestCloseStopsHeartbeatLoop(t *testing.T) {
	d := &testDialer{}
	mock := clock.NewMock()
	p := New(d, mock, logger.Nop(), nil)
	defer p.Shutdown()

	before := runtime.NumGoroutine()
	id, err := p.Get(context.Background(), Config{
		URL:               "ws://host/ws",
		HeartbeatInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	waitUntil(t, "read and heartbeat loops", func() bool {
		return runtime.NumGoroutine() >= before+2
	})

	p.Close(id)

	// Teardown must release both loops without a single tick passing on
	// the clock.
	waitUntil(t, "loop exit after close", func() bool {
		return runtime.NumGoroutine() <= before
	})

	sock := d.socket(0)
	writes := len(sock.textWrites())
	mock.Add(3 * time.Second)
	if got := len(sock.textWrites()); got != writes {
		t.Fatalf("frames written after close = %d, want %d", got, writes)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, _ := p.Get(context.Background(), Config{URL: "ws://host/ws"})

	var mu sync.Mutex
	downs := 0
	p.OnStateChange(id, func(connected bool) {
		if !connected {
			mu.Lock()
			downs++
			mu.Unlock()
		}
	})

	p.Close(id)
	p.Close(id)

	if _, ok := p.Status(id); ok {
		t.Fatalf("connection still present after Close")
	}
	if _, err := p.Subscribe(id, func([]Message) {}); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("Subscribe after Close: err = %v, want ErrUnknownConnection", err)
	}
	if p.Send(id, "x") {
		t.Fatalf("Send after Close succeeded")
	}
	mu.Lock()
	defer mu.Unlock()
	if downs != 1 {
		t.Fatalf("disconnect notifications = %d, want 1", downs)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)

	p.Get(context.Background(), Config{URL: "ws://a/ws"})
	p.Get(context.Background(), Config{URL: "ws://b/ws"})

	p.Shutdown()

	if got := p.ActiveConnections(); len(got) != 0 {
		t.Fatalf("active after shutdown: %v", got)
	}
	if _, err := p.Get(context.Background(), Config{URL: "ws://c/ws"}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Get after shutdown: err = %v, want ErrPoolClosed", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := &testDialer{}
	p := New(d, clock.New(), logger.Nop(), nil)
	defer p.Shutdown()

	id, _ := p.Get(context.Background(), Config{URL: "ws://host/ws", Throttle: 0})

	got := make(chan []Message, 4)
	unsub, _ := p.Subscribe(id, func(batch []Message) { got <- batch })

	sock := d.socket(0)
	sock.in <- []byte(`{"n":1}`)
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("first frame never delivered")
	}

	unsub()
	sock.in <- []byte(`{"n":2}`)
	select {
	case batch := <-got:
		t.Fatalf("delivery after unsubscribe: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}
