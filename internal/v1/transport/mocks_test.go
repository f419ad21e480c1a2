package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tossemideia/synctube/internal/v1/config"
	"github.com/tossemideia/synctube/internal/v1/ratelimit"
	"github.com/tossemideia/synctube/internal/v1/types"
)

type wsMessage struct {
	messageType int
	data        []byte
}

var errConnClosed = errors.New("use of closed connection")

// fakeConn is a scripted wsConnection. Reads come from the reads
// channel; writes are recorded. Closing unblocks a pending read.
type fakeConn struct {
	mu         sync.Mutex
	reads      chan wsMessage
	writes     []wsMessage
	closed     chan struct{}
	closeOnce  sync.Once
	readLimit  int64
	failWrites bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan wsMessage, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-f.reads:
		return m.messageType, m.data, nil
	case <-f.closed:
		return 0, nil, errConnClosed
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errConnClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, wsMessage{messageType: messageType, data: buf})
	return nil
}

func (f *fakeConn) SetReadLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readLimit = limit
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() []wsMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wsMessage, len(f.writes))
	copy(out, f.writes)
	return out
}

// waitClosed blocks until Close was called or the timeout passes.
func (f *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-f.closed:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed")
	}
}

// stubOracle satisfies types.MetadataOracle without network I/O.
type stubOracle struct{}

func (stubOracle) Lookup(context.Context, string) (types.VideoMeta, error) {
	return types.VideoMeta{Title: "Stub Title", Thumbnail: "https://thumbs.test/x.jpg"}, nil
}

func testHubConfig() *config.Config {
	return &config.Config{
		AllowedOrigins:    []string{"http://localhost:3000"},
		HeartbeatInterval: 10 * time.Millisecond,
		HostGracePeriod:   time.Minute,
		EmptyRoomAge:      50 * time.Millisecond,
		RateLimitApi:      "1000-M",
		RateLimitRooms:    "1000-M",
		RateLimitWsIp:     "1000-M",
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := testHubConfig()
	rl, err := ratelimit.NewRateLimiter(cfg)
	require.NoError(t, err)
	return NewHub(cfg, stubOracle{}, rl)
}

// recordingSender captures raw frames handed to a registry.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *recordingSender) SendRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.frames = append(s.frames, buf)
}

func (s *recordingSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSender) captured() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *recordingSender) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
